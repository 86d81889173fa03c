// Package vybiumzkwasm proves recorded zkWasm executions.
//
// A Session takes the compiled program and the steps an interpreter executed
// from its entry function, cuts the steps into slices that fit a circuit of
// 2^k rows and checks every slice against the zkWasm constraint system: the
// per-opcode protocol of the event table, memory consistency, frame
// balance, range and bit lookups and the image tables that bind a slice to
// its program and boundary state.
//
// # Quick Start
//
//	config := utils.DefaultConfig().WithK(22).WithInputs(public, private, nil)
//	session, err := vybiumzkwasm.NewSession(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := session.Load("trace.json"); err != nil {
//		log.Fatal(err)
//	}
//	if err := session.Setup(ctx); err != nil {
//		log.Fatal(err)
//	}
//	proofs, err := session.Prove(ctx, false)
//
// # Continuation
//
// With the "trivial" strategy a trace must fit a single slice. The
// "continuation" strategy links any number of slices: each slice commits to
// a post image holding the memory and state the next slice starts from, and
// the pre image checksum of slice i+1 equals the post image checksum of
// slice i.
//
// # Errors
//
// Every error returned by a Session is a *ZkWasmError. Match the category
// with errors.Is(err, vybiumzkwasm.Code(vybiumzkwasm.ErrCapacity)) and reach
// the underlying cause with errors.As.
package vybiumzkwasm
