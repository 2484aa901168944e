package simulation

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moralgraph/simulator/internal/analysis"
	"github.com/moralgraph/simulator/internal/errors"
	"github.com/moralgraph/simulator/internal/rubric"
	"github.com/moralgraph/simulator/internal/types"
)

// State is the lifecycle phase of an experiment run
type State string

const (
	StateConfigured State = "configured"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Interaction count bounds used when the caller does not fix a count
const (
	MinInteractions = 5
	MaxInteractions = 12
)

const defaultWorkers = 8

// participantSeedStride decorrelates per-participant RNG streams derived
// from a single run seed. The golden-ratio constant exceeds MaxInt64, so
// the derivation wraps in uint64 and reinterprets the bits.
const participantSeedStride uint64 = 0x9E3779B97F4A7C15

// RunConfig configures a single experiment run
type RunConfig struct {
	Participants               int
	InteractionsPerParticipant int
	// RandomizeInteractions draws each participant's interaction count
	// uniformly from [MinInteractions, MaxInteractions] instead of using
	// InteractionsPerParticipant.
	RandomizeInteractions bool
	// Seed fixes the run for reproducibility; 0 seeds from the clock.
	Seed    int64
	Workers int
}

// Runner orchestrates N participants x M interactions into a frozen
// ExperimentResult. Generation is sharded by participant: shards share
// nothing but read-only access to the rubric, and each derives its own RNG
// from the run seed, so a fixed seed yields the same result at any worker
// count.
type Runner struct {
	rubric    *rubric.Rubric
	generator Generator

	mu    sync.Mutex
	state State
}

// NewRunner creates a runner for a validated rubric
func NewRunner(r *rubric.Rubric, g Generator) *Runner {
	return &Runner{
		rubric:    r,
		generator: g,
		state:     StateConfigured,
	}
}

// State returns the lifecycle state of the most recent run
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run executes the experiment. Configuration errors are detected before any
// generation work begins; a single failed interaction aborts the whole run
// rather than silently dropping data.
func (r *Runner) Run(cfg RunConfig) (*types.ExperimentResult, error) {
	if cfg.Participants <= 0 {
		r.setState(StateFailed)
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("participant count must be positive, got %d", cfg.Participants))
	}
	if !cfg.RandomizeInteractions && cfg.InteractionsPerParticipant <= 0 {
		r.setState(StateFailed)
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("interactions per participant must be positive, got %d", cfg.InteractionsPerParticipant))
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > cfg.Participants {
		workers = cfg.Participants
	}

	r.setState(StateRunning)
	startedAt := time.Now()

	shards := make([][]types.Interaction, cfg.Participants)
	jobs := make(chan int)

	var wg sync.WaitGroup
	var runErr error
	var errOnce sync.Once

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				interactions, err := r.runParticipant(idx, seed, cfg)
				if err != nil {
					errOnce.Do(func() { runErr = err })
					continue
				}
				shards[idx] = interactions
			}
		}()
	}

	for idx := 0; idx < cfg.Participants; idx++ {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	if runErr != nil {
		r.setState(StateFailed)
		return nil, runErr
	}

	// Concatenate shards in participant order for a stable sequence
	total := 0
	for _, shard := range shards {
		total += len(shard)
	}
	interactions := make([]types.Interaction, 0, total)
	for _, shard := range shards {
		interactions = append(interactions, shard...)
	}

	result := &types.ExperimentResult{
		RunID:        uuid.New().String(),
		Seed:         seed,
		Interactions: interactions,
		StartedAt:    startedAt,
		CompletedAt:  time.Now(),
	}

	r.setState(StateCompleted)
	return result, nil
}

// runParticipant generates one participant's interaction shard
func (r *Runner) runParticipant(idx int, seed int64, cfg RunConfig) ([]types.Interaction, error) {
	rng := rand.New(rand.NewSource(seed + int64(uint64(idx)*participantSeedStride)))
	participant := drawParticipant(idx, rng)
	picker := newTopicPicker(rubric.Topics)

	count := cfg.InteractionsPerParticipant
	if cfg.RandomizeInteractions {
		count = MinInteractions + rng.Intn(MaxInteractions-MinInteractions+1)
	}

	interactions := make([]types.Interaction, 0, count)
	for i := 0; i < count; i++ {
		topic := picker.pick(rng)

		scores, err := r.generator.Generate(r.rubric, Context{
			Participant: participant,
			Topic:       topic,
		}, rng)
		if err != nil {
			return nil, errors.NewGenerationError(idx, i, err)
		}

		if err := r.validateScores(scores); err != nil {
			return nil, errors.NewGenerationError(idx, i, err)
		}

		total, err := analysis.WeightedTotal(r.rubric, scores)
		if err != nil {
			return nil, errors.NewGenerationError(idx, i, err)
		}

		interactions = append(interactions, types.Interaction{
			ParticipantID:      participant.ID,
			InteractionID:      uuid.New().String(),
			Topic:              topic,
			Scores:             scores,
			TotalWeightedScore: total,
		})
	}

	return interactions, nil
}

// drawParticipant assigns one strength topic and one distinct weakness
// topic; the generator scores interactions on those topics higher and
// lower respectively.
func drawParticipant(idx int, rng *rand.Rand) types.Participant {
	p := types.Participant{
		ID:       fmt.Sprintf("P%04d", idx+1),
		Strength: rubric.Topics[rng.Intn(len(rubric.Topics))],
	}

	p.Weakness = rubric.Topics[rng.Intn(len(rubric.Topics))]
	for p.Weakness == p.Strength {
		p.Weakness = rubric.Topics[rng.Intn(len(rubric.Topics))]
	}

	return p
}

// validateScores rejects partial or out-of-range score vectors at
// construction time instead of at point-of-use.
func (r *Runner) validateScores(scores map[string]float64) error {
	if len(scores) != r.rubric.Len() {
		return fmt.Errorf("score map has %d entries, rubric declares %d dimensions", len(scores), r.rubric.Len())
	}
	for _, name := range r.rubric.DimensionNames() {
		score, ok := scores[name]
		if !ok {
			return fmt.Errorf("score map is missing dimension %q", name)
		}
		if score < rubric.MinScore || score > rubric.MaxScore {
			return fmt.Errorf("dimension %q score %.2f outside [%.1f, %.1f]", name, score, rubric.MinScore, rubric.MaxScore)
		}
	}
	return nil
}
