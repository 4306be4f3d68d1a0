package policy

// #region default-rules

// DefaultRules returns the built-in five-rule registry.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "safety-1",
			Category: CategorySafety,
			Text:     "No irreversible operations without confirmation",
			Severity: SeverityCritical,
			Active:   true,
		},
		{
			ID:       "privacy-1",
			Category: CategoryPrivacy,
			Text:     "User data must be encrypted in transit",
			Severity: SeverityHigh,
			Active:   true,
		},
		{
			ID:       "fairness-1",
			Category: CategoryFairness,
			Text:     "Decisions must be explainable",
			Severity: SeverityHigh,
			Active:   true,
		},
		{
			ID:       "transparency-1",
			Category: CategoryTransparency,
			Text:     "All actions must be logged",
			Severity: SeverityMedium,
			Active:   true,
		},
		{
			ID:       "accountability-1",
			Category: CategoryAccountability,
			Text:     "User must be able to appeal decisions",
			Severity: SeverityMedium,
			Active:   true,
		},
	}
}

// #endregion default-rules

// #region category-predicates

// categoryPredicates are the CEL predicates used when a rule has no Expr.
// Categories without an entry are never violated by default.
var categoryPredicates = map[Category]string{
	CategorySafety:       `plan.risk == "HIGH"`,
	CategoryTransparency: `plan.strategy == "Exploratory"`,
}

// PredicateFor returns the expression that decides violations of r, or "" if none.
func PredicateFor(r Rule) string {
	if r.Expr != "" {
		return r.Expr
	}
	return categoryPredicates[r.Category]
}

// #endregion category-predicates

// #region active

// ActiveRules filters out inactive rules, preserving order.
func ActiveRules(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// #endregion active
