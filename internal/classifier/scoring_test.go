package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"leadpipe/internal/leadmodel"
)

func scoringConfig() Config {
	cfg := testConfig()
	cfg.applyDefaults()
	return cfg
}

func TestScoreLeadIsLowForThinUnenrichedLead(t *testing.T) {
	lead := leadmodel.Lead{ConfidenceScore: 0.6, ProjectStage: leadmodel.StageConceptual}
	scored := ScoreLead(lead, scoringConfig())
	assert.Less(t, scored.QualityScore, 50.0)
	assert.Equal(t, leadmodel.PriorityMinimal, scored.Priority)
}

func TestScoreLeadRewardsCompletenessAndLateStage(t *testing.T) {
	thin := leadmodel.Lead{ConfidenceScore: 0.8, ProjectStage: leadmodel.StageConceptual}
	rich := leadmodel.Lead{
		ConfidenceScore: 0.8,
		ProjectStage:    leadmodel.StageImplementation,
		Company:         &leadmodel.Company{Name: "Acme"},
		Contacts:        []leadmodel.Contact{{Name: "Jane Doe"}},
		EstimatedValue:  &leadmodel.Money{Amount: 2_000_000, Currency: "USD"},
		EstimatedSize:   &leadmodel.Area{SquareFeet: 50_000},
	}

	cfg := scoringConfig()
	thinScored := ScoreLead(thin, cfg)
	richScored := ScoreLead(rich, cfg)

	assert.Greater(t, richScored.QualityScore, thinScored.QualityScore)
	assert.Greater(t, richScored.WinProbability, thinScored.WinProbability)
}

func TestScoreLeadIsPureAndIdempotent(t *testing.T) {
	lead := leadmodel.Lead{
		ConfidenceScore: 0.9,
		ProjectStage:    leadmodel.StageFunding,
		EstimatedValue:  &leadmodel.Money{Amount: 6_000_000, Currency: "USD"},
	}
	cfg := scoringConfig()

	once := ScoreLead(lead, cfg)
	twice := ScoreLead(once, cfg)

	assert.Equal(t, once.QualityScore, twice.QualityScore)
	assert.Equal(t, once.WinProbability, twice.WinProbability)
	assert.Equal(t, once.Priority, twice.Priority)
}

func TestScoreLeadHighValueLateStageIsCritical(t *testing.T) {
	lead := leadmodel.Lead{
		ConfidenceScore: 0.9,
		ProjectStage:    leadmodel.StageImplementation,
		EstimatedValue:  &leadmodel.Money{Amount: 10_000_000, Currency: "USD"},
	}
	scored := ScoreLead(lead, scoringConfig())
	assert.Equal(t, leadmodel.PriorityCritical, scored.Priority)
	assert.GreaterOrEqual(t, scored.WinProbability, 0.0)
	assert.LessOrEqual(t, scored.WinProbability, 1.0)
}
