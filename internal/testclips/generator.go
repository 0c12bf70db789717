package testclips

import (
	"math/rand"

	"github.com/google/uuid"
)

// Generator layout constants, in milliseconds.
const (
	leadInMS        = 500
	tailMS          = 500
	callerMinMS     = 300
	callerRangeMS   = 600
	agentMinMS      = 800
	agentRangeMS    = 1200
	interTurnGapMS  = 700
	frameAlignMS    = 10
	defaultTurns    = 4
	defaultMinDelay = 200
	defaultMaxDelay = 1200
)

// GenConfig shapes generated recordings.
type GenConfig struct {
	Count      int
	Turns      int
	SampleRate int
	CallerDBFS float64
	AgentDBFS  float64
	MinDelayMS int // silence between the end of caller speech and the agent response
	MaxDelayMS int
	Seed       int64
}

// ExpectedTurn is the ground truth for one generated turn.
type ExpectedTurn struct {
	UserOnsetMS  int `json:"user_onset_ms"`
	AgentOnsetMS int `json:"agent_onset_ms"`
	RTTMS        int `json:"rtt_ms"`
}

// Spec is one generated recording and its ground truth.
type Spec struct {
	ID       string         `json:"id"`
	Clip     Clip           `json:"-"`
	Expected []ExpectedTurn `json:"expected"`
}

func (c GenConfig) withDefaults() GenConfig {
	if c.Turns <= 0 {
		c.Turns = defaultTurns
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.CallerDBFS == 0 {
		c.CallerDBFS = -20
	}
	if c.AgentDBFS == 0 {
		c.AgentDBFS = -18
	}
	if c.MinDelayMS <= 0 {
		c.MinDelayMS = defaultMinDelay
	}
	if c.MaxDelayMS < c.MinDelayMS {
		c.MaxDelayMS = defaultMaxDelay
	}
	return c
}

// Generate lays out cfg.Count recordings of alternating caller and agent turns.
// The same seed always yields the same timings; IDs are random.
func Generate(cfg GenConfig) []Spec {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible layouts, not security sensitive

	specs := make([]Spec, cfg.Count)
	for i := range specs {
		specs[i] = generateOne(cfg, rng)
	}
	return specs
}

func generateOne(cfg GenConfig, rng *rand.Rand) Spec {
	clip := Clip{SampleRate: cfg.SampleRate}
	expected := make([]ExpectedTurn, 0, cfg.Turns)

	cursor := leadInMS
	for t := 0; t < cfg.Turns; t++ {
		callerEnd := cursor + align(callerMinMS+rng.Intn(callerRangeMS))
		delay := align(cfg.MinDelayMS + rng.Intn(cfg.MaxDelayMS-cfg.MinDelayMS+1))
		agentStart := callerEnd + delay
		agentEnd := agentStart + align(agentMinMS+rng.Intn(agentRangeMS))

		clip.Caller = append(clip.Caller, Segment{StartMS: cursor, EndMS: callerEnd, DBFS: cfg.CallerDBFS})
		clip.Agent = append(clip.Agent, Segment{StartMS: agentStart, EndMS: agentEnd, DBFS: cfg.AgentDBFS})
		expected = append(expected, ExpectedTurn{
			UserOnsetMS:  cursor,
			AgentOnsetMS: agentStart,
			RTTMS:        agentStart - cursor,
		})
		cursor = agentEnd + interTurnGapMS
	}
	clip.DurationMS = cursor + tailMS

	return Spec{ID: uuid.New().String(), Clip: clip, Expected: expected}
}

// align rounds ms down to a whole frame so segment edges fall on frame boundaries.
func align(ms int) int {
	return ms - ms%frameAlignMS
}
