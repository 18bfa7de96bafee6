package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/auramd-consensus-server/internal/domain"
)

// icd10Pattern matches well-formed ICD-10 codes, e.g. J18.9 or A01.
var icd10Pattern = regexp.MustCompile(`^[A-Z]\d{2,3}(\.\d{1,4})?$`)

// ConsensusEngine merges N independent diagnostic opinions for one case into
// a single deduplicated, confidence-calibrated, urgency-resolved, ranked
// output. It holds no state across requests: Aggregate is a pure function of
// its inputs and the tuning constants, and identical input always yields
// identical output.
type ConsensusEngine struct {
	logger *logrus.Logger
	cfg    domain.EngineConfig
}

// NewConsensusEngine creates a consensus engine with validated tuning
// constants. Invalid constants are a startup failure.
func NewConsensusEngine(logger *logrus.Logger, cfg domain.EngineConfig) (*ConsensusEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConsensusEngine{logger: logger, cfg: cfg}, nil
}

// contribution is one source's confidence and reasoning for one condition.
type contribution struct {
	sourceID   string
	confidence float64
	reasoning  string
}

// conditionGroup collects everything the input opinions said about one
// condition name. Grouping is exact, case-sensitive string equality;
// semantic/ontology matching is deliberately out of scope.
type conditionGroup struct {
	name          string
	icd10         string
	contributions []contribution
	combined      float64
	sourceIDs     []string
}

// Aggregate merges the supplied opinions into one ranked consensus,
// truncated to maxResults candidates. The caller guarantees every opinion
// is validated or fallback-substituted; empty input or a non-positive
// maxResults is a contract violation and returns an error rather than a
// degraded result.
func (e *ConsensusEngine) Aggregate(opinions []*domain.RawOpinion, maxResults int) (*domain.DiagnosticConsensus, error) {
	if len(opinions) == 0 {
		return nil, domain.ErrNoOpinions
	}
	if maxResults <= 0 {
		return nil, domain.ErrInvalidMaxResults
	}

	groups := e.groupCandidates(opinions)

	for _, g := range groups {
		e.combineConfidence(g)
	}

	// Stable sort keeps first-seen order among equal confidences, so the
	// ranking is reproducible for identical inputs.
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].combined > groups[j].combined
	})

	if len(groups) > maxResults {
		groups = groups[:maxResults]
	}

	candidates := make([]domain.ConsensusCandidate, 0, len(groups))
	for i, g := range groups {
		candidates = append(candidates, domain.ConsensusCandidate{
			ConditionName:     g.name,
			ConfidenceScore:   g.combined,
			CombinedReasoning: e.combineReasoning(g.contributions),
			ICD10Code:         g.icd10,
			DifferentialRank:  i + 1,
			SourceIDs:         g.sourceIDs,
		})
	}

	consensus := &domain.DiagnosticConsensus{
		Candidates:        candidates,
		RecommendedTests:  mergeUnique(opinions, func(op *domain.RawOpinion) []string { return op.RecommendedTests }),
		UrgencyLevel:      resolveUrgency(opinions),
		ClinicalReasoning: e.combineClinicalReasoning(opinions),
		RedFlags:          mergeUnique(opinions, func(op *domain.RawOpinion) []string { return op.RedFlags }),
	}

	e.logger.WithFields(logrus.Fields{
		"opinions":   len(opinions),
		"conditions": len(candidates),
		"urgency":    consensus.UrgencyLevel,
		"red_flags":  len(consensus.RedFlags),
	}).Info("Completed consensus aggregation")

	return consensus, nil
}

// groupCandidates groups candidates across all opinions by exact condition
// name, preserving the order each condition first appeared across the
// concatenated inputs. A source mentioning the same condition twice counts
// once, with its first entry.
func (e *ConsensusEngine) groupCandidates(opinions []*domain.RawOpinion) []*conditionGroup {
	byName := make(map[string]*conditionGroup)
	order := make([]*conditionGroup, 0)

	for _, op := range opinions {
		for _, cand := range op.Diagnoses {
			g, ok := byName[cand.ConditionName]
			if !ok {
				g = &conditionGroup{name: cand.ConditionName}
				byName[cand.ConditionName] = g
				order = append(order, g)
			}
			if contributedBy(g, op.SourceID) {
				continue
			}
			g.contributions = append(g.contributions, contribution{
				sourceID:   op.SourceID,
				confidence: cand.ConfidenceScore,
				reasoning:  cand.Reasoning,
			})
			// First well-formed code wins; malformed codes are dropped
			// rather than invalidating the whole opinion.
			if g.icd10 == "" && icd10Pattern.MatchString(cand.ICD10Code) {
				g.icd10 = cand.ICD10Code
			}
		}
	}

	return order
}

func contributedBy(g *conditionGroup, sourceID string) bool {
	for _, c := range g.contributions {
		if c.sourceID == sourceID {
			return true
		}
	}
	return false
}

// combineConfidence applies the calibration rule to one condition group.
// Two or more strictly positive contributions are averaged, with an
// agreement bonus when the contributions cluster within the configured
// threshold; a lone positive contribution is penalized to damp unconfirmed
// findings. Absence is treated as zero confidence, so a source that never
// mentioned the condition pushes the group down the single-source path.
func (e *ConsensusEngine) combineConfidence(g *conditionGroup) {
	positives := make([]contribution, 0, len(g.contributions))
	for _, c := range g.contributions {
		if c.confidence > 0 {
			positives = append(positives, c)
		}
	}

	switch len(positives) {
	case 0:
		g.combined = 0.0
	case 1:
		g.combined = positives[0].confidence * e.cfg.SingleSourcePenalty
		g.sourceIDs = []string{positives[0].sourceID}
	default:
		sum, min, max := 0.0, positives[0].confidence, positives[0].confidence
		for _, c := range positives {
			sum += c.confidence
			if c.confidence < min {
				min = c.confidence
			}
			if c.confidence > max {
				max = c.confidence
			}
			g.sourceIDs = append(g.sourceIDs, c.sourceID)
		}
		combined := sum / float64(len(positives))
		if max-min < e.cfg.AgreementThreshold {
			combined += e.cfg.AgreementBonus
		}
		g.combined = combined
	}

	g.combined = clamp01(g.combined)
}

// combineReasoning concatenates each contributing source's reasoning as
// labeled segments in stable source order, separated by a blank line.
// Sources that contributed nothing for the condition are omitted.
func (e *ConsensusEngine) combineReasoning(contributions []contribution) string {
	segments := make([]string, 0, len(contributions))
	for _, c := range contributions {
		if c.reasoning == "" {
			continue
		}
		segments = append(segments, fmt.Sprintf("%s Analysis: %s", c.sourceID, c.reasoning))
	}
	return strings.Join(segments, "\n\n")
}

// combineClinicalReasoning joins the overall clinical reasoning of every
// opinion that supplied one, labeled per source, in input order.
func (e *ConsensusEngine) combineClinicalReasoning(opinions []*domain.RawOpinion) string {
	segments := make([]string, 0, len(opinions))
	for _, op := range opinions {
		if op.ClinicalReasoning == "" {
			continue
		}
		segments = append(segments, fmt.Sprintf("%s Analysis: %s", op.SourceID, op.ClinicalReasoning))
	}
	return strings.Join(segments, "\n\n")
}

// resolveUrgency maps every opinion's urgency to its ordinal and returns the
// level with the maximum ordinal. Most severe always governs; urgency is
// never averaged. Unrecognized values count as routine.
func resolveUrgency(opinions []*domain.RawOpinion) domain.UrgencyLevel {
	maxOrdinal := 1
	for _, op := range opinions {
		if ord := op.UrgencyLevel.Ordinal(); ord > maxOrdinal {
			maxOrdinal = ord
		}
	}
	return domain.UrgencyFromOrdinal(maxOrdinal)
}

// mergeUnique unions string sequences across all opinions, deduplicated by
// exact match, preserving first-seen order for reproducible output.
func mergeUnique(opinions []*domain.RawOpinion, extract func(*domain.RawOpinion) []string) []string {
	seen := make(map[string]struct{})
	merged := make([]string, 0)
	for _, op := range opinions {
		for _, item := range extract(op) {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
