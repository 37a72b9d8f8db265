package pipeline

import (
	"fmt"
	"log"
	"strings"
	"time"

	"featurepipe/internal/metrics"
)

// Phase is a run-level state of Transform.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseDecode
	PhaseAnalyze
	PhaseLoadArtifact
	PhaseTransform
	PhaseEncode
	PhaseDone
)

var phaseNames = [...]string{"INIT", "DECODE", "ANALYZE", "LOAD_ARTIFACT", "TRANSFORM", "ENCODE", "DONE"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// next lists the legal successors of each phase. ANALYZE and LOAD_ARTIFACT
// are alternatives; either one must finish before TRANSFORM is entered.
var next = map[Phase][]Phase{
	PhaseInit:         {PhaseDecode},
	PhaseDecode:       {PhaseAnalyze, PhaseLoadArtifact},
	PhaseAnalyze:      {PhaseTransform},
	PhaseLoadArtifact: {PhaseTransform},
	PhaseTransform:    {PhaseEncode},
	PhaseEncode:       {PhaseDone},
}

// machine tracks the current phase of one run and reports each finished
// phase as a metrics step.
type machine struct {
	job     string
	prefix  string
	verbose bool
	cur     Phase
	since   time.Time
}

func newMachine(job, prefix string, verbose bool) *machine {
	return &machine{job: job, prefix: prefix, verbose: verbose, cur: PhaseInit, since: time.Now()}
}

func (m *machine) Phase() Phase { return m.cur }

// advance moves to to. An illegal transition is a programming error in the
// caller and is returned rather than ignored.
func (m *machine) advance(to Phase) error {
	ok := false
	for _, p := range next[m.cur] {
		if p == to {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%s: illegal phase transition %s -> %s", m.prefix, m.cur, to)
	}
	d := time.Since(m.since)
	metrics.RecordStep(m.job, phaseStep(m.cur), nil, d)
	if m.verbose {
		log.Printf("%s: phase %s done in %s, entering %s", m.prefix, m.cur, d.Truncate(time.Millisecond), to)
	}
	m.cur, m.since = to, time.Now()
	return nil
}

// fail records the current phase as failed and passes err through.
func (m *machine) fail(err error) error {
	metrics.RecordStep(m.job, phaseStep(m.cur), err, time.Since(m.since))
	return err
}

func phaseStep(p Phase) string {
	switch p {
	case PhaseLoadArtifact:
		return "load_artifact"
	default:
		return strings.ToLower(p.String())
	}
}
