package specs

// DefaultMaximalMemoryPages is the wasm limit of 4 GiB of linear memory.
const DefaultMaximalMemoryPages = 65536

// ConfigureTable holds the memory limits declared by the module.
type ConfigureTable struct {
	InitMemoryPages    uint32 `json:"init_memory_pages"`
	MaximalMemoryPages uint32 `json:"maximal_memory_pages"`
}

// DefaultConfigureTable returns a module without memory and the wasm page
// limit.
func DefaultConfigureTable() ConfigureTable {
	return ConfigureTable{InitMemoryPages: 0, MaximalMemoryPages: DefaultMaximalMemoryPages}
}
