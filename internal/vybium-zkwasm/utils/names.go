package utils

import "fmt"

// Artifact file names. A session named n writes every file under its output
// directory with these names; parameters are shared across sessions.

func ParamsFileName(k uint32) string { return fmt.Sprintf("K%d.params", k) }

func ConfigFileName(name string) string { return fmt.Sprintf("%s.zkwasm.config", name) }

func CircuitOngoingFileName(name string) string { return fmt.Sprintf("%s.circuit.ongoing.data", name) }

func CircuitFinalizedFileName(name string) string {
	return fmt.Sprintf("%s.circuit.finalized.data", name)
}

func LoadInfoFileName(name string) string { return fmt.Sprintf("%s.loadinfo.json", name) }

func WitnessFileName(name string, index int) string {
	return fmt.Sprintf("%s.%d.witness.json", name, index)
}

func InstanceFileName(name string, index int) string {
	return fmt.Sprintf("%s.%d.instance.json", name, index)
}

func TranscriptFileName(name string, index int) string {
	return fmt.Sprintf("%s.%d.transcript.json", name, index)
}

func EventTableFileName(name string, index int) string {
	return fmt.Sprintf("%s.etable.%d.json", name, index)
}

func FrameTableFileName(name string, index int) string {
	return fmt.Sprintf("%s.frame_table.%d.data", name, index)
}

func ExternalHostTableFileName(index int) string {
	return fmt.Sprintf("external_host_table.%d.json", index)
}
