package model

import "time"

// Retention bounds for turn measurements.
const (
	MinRetainedRTTMS      = 50
	MaxRetainedRTTMS      = 5000
	MinRetainedConfidence = 0.3
)

// SpeechOnsetEvent marks where sustained energy begins on one channel.
// It only seeds a matcher candidate and is never stored.
type SpeechOnsetEvent struct {
	ChannelID ChannelID
	StartMS   int
	Verified  bool
}

// TurnMeasurement is one caller-onset to agent-onset pairing.
type TurnMeasurement struct {
	RecordingID  string    `json:"recording_id"`
	CallID       string    `json:"call_id"`
	Timestamp    time.Time `json:"timestamp"`
	UserOnsetMS  int       `json:"user_onset_ms"`
	AgentOnsetMS int       `json:"agent_onset_ms"`
	RTTMS        int       `json:"rtt_ms"`
	Confidence   float64   `json:"confidence"`
	Quality      float64   `json:"quality"`
}

// Retainable reports whether the measurement passes the store filter:
// 50 <= rtt <= 5000 ms and confidence > 0.3.
func (m TurnMeasurement) Retainable() bool {
	return m.RTTMS >= MinRetainedRTTMS &&
		m.RTTMS <= MaxRetainedRTTMS &&
		m.Confidence > MinRetainedConfidence
}
