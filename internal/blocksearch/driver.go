package blocksearch

// Params configure one block-search run.
type Params struct {
	Required         int     // N, the target number of accepted sources
	InitialVariation float64 // epsilon-zero, fraction (0.25 = 25%)
	EscalationStep   float64 // fixed widening per escalation
	MaxEscalations   int
}

// Fixed escalation constants: five widenings of 0.05 each.
const (
	DefaultEscalationStep = 0.05
	DefaultMaxEscalations = 5
)

// ProbeFunc tests one untried candidate. It returns whether the
// candidate validated; a non-nil error aborts the whole search
// (cancellation, fatal infrastructure failure).
type ProbeFunc func(c Candidate) (bool, error)

// Result is the outcome of a run.
type Result struct {
	// Accepted are the validated members of the winning (or best
	// observed) block, in block order.
	Accepted []Candidate
	// Complete is true when Accepted reaches Required within one block.
	Complete           bool
	FinalVariation     float64
	ToleranceIncreases int
	BlocksTried        int
	Probed             int
	UsedReserve        bool
}

type runState struct {
	validated map[Key]bool
	failed    map[Key]bool
	probed    int
}

// Run drives the block search over the candidate pool. heartbeat is
// invoked on every iteration so the caller can refresh its claim lease;
// it may be nil.
func Run(pool []Candidate, p Params, probe ProbeFunc, heartbeat func()) (Result, error) {
	if heartbeat == nil {
		heartbeat = func() {}
	}
	if p.EscalationStep == 0 {
		p.EscalationStep = DefaultEscalationStep
	}
	if p.MaxEscalations == 0 {
		p.MaxEscalations = DefaultMaxEscalations
	}

	sorted := SortCandidates(pool)
	st := &runState{validated: make(map[Key]bool), failed: make(map[Key]bool)}

	eps := p.InitialVariation
	escalations := 0
	blocksTried := 0
	alternativeTried := false
	var best Block
	bestCount := -1

	result := func(b Block, complete bool) Result {
		return Result{
			Accepted:           validatedMembers(b, st.validated),
			Complete:           complete,
			FinalVariation:     eps,
			ToleranceIncreases: escalations,
			BlocksTried:        blocksTried,
			Probed:             st.probed,
			UsedReserve:        alternativeTried,
		}
	}
	escalate := func() bool {
		if escalations < p.MaxEscalations {
			eps += p.EscalationStep
			escalations++
			return true
		}
		return false
	}
	noteBlock := func(b Block) {
		if n := ValidatedIn(b, st.validated); n > bestCount {
			best, bestCount = b, n
		}
	}

	for {
		heartbeat()

		var eligible []Block
		for _, b := range RankBlocks(FormBlocks(sorted, eps)) {
			if len(b.Members) >= p.Required {
				eligible = append(eligible, b)
			}
		}
		if len(eligible) == 0 {
			if escalate() {
				continue
			}
			break
		}

		// Tie-break subtlety: when the top-ranked block holds the whole
		// validated set but is exhausted below N, save the set as a
		// reserve and try one large alternative block fresh.
		top := eligible[0]
		if !alternativeTried && len(st.validated) > 0 &&
			containsAll(top, st.validated) &&
			untriedIn(top, st) == 0 &&
			ValidatedIn(top, st.validated) < p.Required {
			if alt := largestFresh(eligible, st, p.Required); alt != nil {
				alternativeTried = true
				reserve := snapshot(st.validated)
				st.validated = make(map[Key]bool)
				blocksTried++
				ok, err := probeBlock(*alt, p.Required, st, probe, heartbeat)
				if err != nil {
					return Result{}, err
				}
				if ok {
					return result(*alt, true), nil
				}
				// The alternative failed: restore the reserve (keeping
				// any genuinely validated keys) and never re-enter this
				// path in the run.
				for k := range st.validated {
					reserve[k] = true
				}
				st.validated = reserve
				noteBlock(*alt)
				continue
			}
		}

		var target *Block
		for i := range eligible {
			if Potential(eligible[i], st.validated, st.failed) >= p.Required {
				target = &eligible[i]
				break
			}
		}
		if target == nil {
			if escalate() {
				continue
			}
			break
		}

		blocksTried++
		ok, err := probeBlock(*target, p.Required, st, probe, heartbeat)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return result(*target, true), nil
		}
		noteBlock(*target)
	}

	// Best effort: the block observed with the most validated sources.
	if bestCount <= 0 && len(st.validated) > 0 {
		for _, b := range RankBlocks(FormBlocks(sorted, eps)) {
			noteBlock(b)
		}
	}
	if bestCount <= 0 {
		return Result{
			FinalVariation:     eps,
			ToleranceIncreases: escalations,
			BlocksTried:        blocksTried,
			Probed:             st.probed,
			UsedReserve:        alternativeTried,
		}, nil
	}
	return result(best, false), nil
}

// probeBlock tests every untried member of the block in order, stopping
// early once the block holds Required validated sources. Returns true
// on success. When it returns false, at least one new key has failed,
// so the caller's next iteration always makes progress.
func probeBlock(b Block, required int, st *runState, probe ProbeFunc, heartbeat func()) (bool, error) {
	for _, m := range b.Members {
		if ValidatedIn(b, st.validated) >= required {
			return true, nil
		}
		k := m.Key()
		if st.validated[k] || st.failed[k] {
			continue
		}
		heartbeat()
		st.probed++
		ok, err := probe(m)
		if err != nil {
			return false, err
		}
		if ok {
			st.validated[k] = true
		} else {
			st.failed[k] = true
		}
	}
	return ValidatedIn(b, st.validated) >= required, nil
}

// largestFresh picks the eligible block with the most untried members,
// requiring enough untried to reach the target on its own.
func largestFresh(eligible []Block, st *runState, required int) *Block {
	var pick *Block
	bestUntried := 0
	for i := range eligible {
		u := untriedIn(eligible[i], st)
		if u >= required && u > bestUntried {
			pick = &eligible[i]
			bestUntried = u
		}
	}
	return pick
}

func untriedIn(b Block, st *runState) int {
	n := 0
	for _, m := range b.Members {
		k := m.Key()
		if !st.validated[k] && !st.failed[k] {
			n++
		}
	}
	return n
}

func validatedMembers(b Block, validated map[Key]bool) []Candidate {
	var out []Candidate
	for _, m := range b.Members {
		if validated[m.Key()] {
			out = append(out, m)
		}
	}
	return out
}

func snapshot(set map[Key]bool) map[Key]bool {
	cp := make(map[Key]bool, len(set))
	for k := range set {
		cp[k] = true
	}
	return cp
}
