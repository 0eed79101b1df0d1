package catalog

import "github.com/mpataki/cadence/internal/models"

// Builtin returns the run types available without any definition files.
// Each call returns fresh values.
func Builtin() []*models.RunType {
	return []*models.RunType{
		buildRunType(),
		discoveryRunType(),
		testRunType(),
		transformRunType(),
	}
}

func buildRunType() *models.RunType {
	return &models.RunType{
		ID:          "build",
		Name:        "Build orchestrator",
		Description: "Applies the signed-off configuration to the target system.",
		Steps: []*models.StepSpec{
			{Threshold: 5, Step: "company-codes", Kind: models.StepKindStart},
			{Threshold: 20, Step: "company-codes", Kind: models.StepKindSucceed, Outcome: models.Outcome{
				Logs:     []string{"Created 1000", "Created 1100"},
				Evidence: []string{"Transport TR12345 exported", "BAPI_COMPANYCODE_CREATE used"},
			}},
			{Threshold: 25, Step: "eu-vat", Kind: models.StepKindStart},
			{Threshold: 45, Step: "eu-vat", Kind: models.StepKindSucceed, Outcome: models.Outcome{
				Logs:     []string{"Upload start", "Validation OK"},
				Evidence: []string{"EU-VAT-2025.xlsx imported", "57 codes validated"},
			}},
			{Threshold: 50, Step: "je-approval", Kind: models.StepKindStart},
			{Threshold: 65, Step: "je-approval", Kind: models.StepKindBlock, Outcome: models.Outcome{
				Reason: "Workflow transport import locked by change freeze (18:00-20:00)",
				Action: "Review transport window or override",
			}},
			{Threshold: 70, Step: "sac-feed", Kind: models.StepKindStart},
			{Threshold: 90, Step: "sac-feed", Kind: models.StepKindSucceed, Outcome: models.Outcome{
				Logs:     []string{"RFC ping ok", "Cron saved"},
				Evidence: []string{"SAC connection validated", "Delta partition enabled"},
			}},
		},
		Insights: []*models.InsightRule{
			{
				WhenDone: []string{"sac-feed"},
				Title:    "Enable gzip on SAC feed",
				Detail:   "Projected 38% reduction in transfer time.",
			},
		},
	}
}

func discoveryRunType() *models.RunType {
	return &models.RunType{
		ID:          "discovery",
		Name:        "System discovery",
		Description: "Scans the connected source system and builds an inventory.",
		Steps: []*models.StepSpec{
			{Threshold: 10, Step: "scan", Kind: models.StepKindStart, Outcome: models.Outcome{
				Logs: []string{"Connected via RFC & OData"},
			}},
			{Threshold: 30, Kind: models.StepKindLog, Outcome: models.Outcome{
				Logs: []string{"Read customizing tables (FIN, INT)"},
			}},
			{Threshold: 50, Kind: models.StepKindLog, Outcome: models.Outcome{
				Logs: []string{"Detected 2 company codes, 57 VAT codes"},
			}},
			{Threshold: 70, Kind: models.StepKindLog, Outcome: models.Outcome{
				Logs: []string{"Found nightly integration job (SAC)"},
			}},
			{Threshold: 90, Kind: models.StepKindLog, Outcome: models.Outcome{
				Logs: []string{"Transport history normalized"},
			}},
			{Threshold: 100, Step: "scan", Kind: models.StepKindSucceed, Outcome: models.Outcome{
				Logs:     []string{"Discovery complete"},
				Evidence: []string{"Inventory: Finance, Tax, Integrations"},
			}},
		},
		Insights: []*models.InsightRule{
			{
				WhenDone: []string{"scan"},
				Title:    "New VAT code introduced",
				Detail:   "Mapping missing; review tax mapping before the next sync.",
			},
		},
	}
}

func testRunType() *models.RunType {
	return &models.RunType{
		ID:          "test",
		Name:        "Test run",
		Description: "Executes an automated test package against the build.",
		Steps: []*models.StepSpec{
			{Threshold: 1, Step: "execute", Kind: models.StepKindStart, Outcome: models.Outcome{
				Logs: []string{"Run started"},
			}},
			{Threshold: 100, Step: "execute", Kind: models.StepKindSucceed, Outcome: models.Outcome{
				Logs:     []string{"All assertions passed"},
				Evidence: []string{"Execution log captured"},
			}},
		},
		Insights: []*models.InsightRule{
			{WhenDone: []string{"execute"}, Title: "Coverage updated"},
		},
	}
}

func transformRunType() *models.RunType {
	return &models.RunType{
		ID:          "transform",
		Name:        "Data transformation",
		Description: "Extracts legacy rows, applies field mappings and loads the target.",
		Steps: []*models.StepSpec{
			{Threshold: 1, Step: "extract", Kind: models.StepKindStart},
			{Threshold: 30, Step: "extract", Kind: models.StepKindSucceed, Outcome: models.Outcome{
				Evidence: []string{"Legacy extract read"},
			}},
			{Threshold: 31, Step: "map", Kind: models.StepKindStart},
			{Threshold: 70, Step: "map", Kind: models.StepKindSucceed, Outcome: models.Outcome{
				Logs:     []string{"Mapping rules applied"},
				Evidence: []string{"Mapping history recorded"},
			}},
			{Threshold: 71, Step: "load", Kind: models.StepKindStart},
			{Threshold: 100, Step: "load", Kind: models.StepKindSucceed, Outcome: models.Outcome{
				Evidence: []string{"Target rows loaded"},
			}},
		},
		Insights: []*models.InsightRule{
			{WhenDone: []string{"extract", "map", "load"}, Title: "Enable delta partitioning", Detail: "Subsequent loads only move changed rows."},
		},
	}
}
