package specs

// Slice is one bounded part of an execution together with everything a
// circuit needs to prove it in isolation.
type Slice struct {
	ETable                  *EventTable            `json:"etable"`
	FrameTable              *FrameTable            `json:"frame_table"`
	PostInheritedFrameTable *FrameTable            `json:"post_inherited_frame_table"`
	ExternalHostCallTable   *ExternalHostCallTable `json:"external_host_call_table"`
	MemoryTable             *MemoryTable           `json:"memory_table"`

	PreImage  *Image `json:"pre_image"`
	PostImage *Image `json:"post_image,omitempty"`

	InitializationState     InitializationState `json:"initialization_state"`
	PostInitializationState InitializationState `json:"post_initialization_state"`
	IsLastSlice             bool                `json:"is_last_slice"`
}
