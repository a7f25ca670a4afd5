package ir

// NOTE: These are archive records, not part of the plan IR. ID and Seq are
// assigned by the store.

// Capture is one finished capture as archived by the store.
//
// Data holds the captured bytes: the RAM buffer in ram mode, the medium
// contents from the end of the header to the last address in mem mode.
type Capture struct {
	ID            string           `json:"id"`
	Seq           int64            `json:"seq"`
	PlanName      string           `json:"plan_name"`
	PlanHash      string           `json:"plan_hash"`
	Plan          CapturePlan      `json:"plan"`
	Mode          string           `json:"mode"`
	FinalState    string           `json:"final_state"`
	Overrun       bool             `json:"overrun"`
	Ticks         uint64           `json:"ticks"`
	TimeBase      uint32           `json:"time_base"`
	Header        []byte           `json:"header,omitempty"`
	Data          []byte           `json:"data"`
	DataDigest    string           `json:"data_digest"`
	EngineVersion string           `json:"engine_version"`
	PlanVersion   string           `json:"plan_version"`
	Channels      []CaptureChannel `json:"channels"`
}

// CaptureChannel records where one channel's samples sit inside
// Capture.Data.
type CaptureChannel struct {
	Slot         int    `json:"slot"`
	ChannelID    uint32 `json:"channel_id"`
	Variable     string `json:"variable"`
	Width        uint8  `json:"width"`
	Divider      uint16 `json:"divider"`
	RecordLength uint32 `json:"record_length"`
	Offset       uint32 `json:"offset"` // into Data, header excluded
	Samples      uint32 `json:"samples"`
}

// CaptureSummary is the listing form of a Capture, without payloads.
type CaptureSummary struct {
	ID         string `json:"id"`
	Seq        int64  `json:"seq"`
	PlanName   string `json:"plan_name"`
	PlanHash   string `json:"plan_hash"`
	Mode       string `json:"mode"`
	FinalState string `json:"final_state"`
	Overrun    bool   `json:"overrun"`
	DataLen    int    `json:"data_len"`
}

// Slice returns channel ch's bytes within data, clamped to what data holds.
func (ch CaptureChannel) Slice(data []byte) []byte {
	start := uint64(ch.Offset)
	end := start + uint64(ch.Samples)*uint64(ch.Width)
	if start > uint64(len(data)) {
		return nil
	}
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[start:end]
}
