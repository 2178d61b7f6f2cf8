package service

import (
	"casewatch/logger"
	"casewatch/metrics"
	"casewatch/models"
	"casewatch/repository"
	"context"
	"errors"
	"fmt"
)

// Tier labels reported with every resolution
const (
	TierAssignedInvestigator     = "assigned_investigator"
	TierBranchAdmins             = "branch_admins"
	TierCompanyAdminsAlternative = "company_admins_alternative"
	TierPrimaryRecipients        = "primary_recipients"
	TierAlternativeBranchAdmins  = "alternative_branch_admins"
	TierCompanyAdmins            = "company_admins"
	TierSuperAdmins              = "super_admins"
	TierNone                     = "none"
)

// RecipientTier is one level of a fallback chain
type RecipientTier struct {
	Label      string
	Candidates func(ctx context.Context) ([]models.User, error)
}

// RecipientResult is the first non-empty tier after exclusions.
// Tier is TierNone with no recipients when every tier came up empty.
type RecipientResult struct {
	Recipients []models.User
	Tier       string
	TierErrors []error
}

// Empty reports whether nobody can be notified
func (r RecipientResult) Empty() bool {
	return len(r.Recipients) == 0
}

// firstNonEmpty walks tiers in order and returns the first one that still has users
// after removing excluded ids. A tier that fails to load is recorded and skipped.
func firstNonEmpty(ctx context.Context, tiers []RecipientTier, exclude map[int64]bool) RecipientResult {
	var tierErrors []error
	for _, tier := range tiers {
		users, err := tier.Candidates(ctx)
		if err != nil {
			tierErrors = append(tierErrors, fmt.Errorf("tier %s: %w", tier.Label, err))
			continue
		}
		kept := make([]models.User, 0, len(users))
		for _, u := range users {
			if exclude[u.UserID] {
				continue
			}
			kept = append(kept, u)
		}
		if len(kept) > 0 {
			return RecipientResult{Recipients: kept, Tier: tier.Label, TierErrors: tierErrors}
		}
	}
	return RecipientResult{Tier: TierNone, TierErrors: tierErrors}
}

// unionTier merges candidate pools, deduplicated by user id, first occurrence kept
func unionTier(label string, pools ...func(ctx context.Context) ([]models.User, error)) RecipientTier {
	return RecipientTier{
		Label: label,
		Candidates: func(ctx context.Context) ([]models.User, error) {
			seen := make(map[int64]bool)
			var out []models.User
			for _, pool := range pools {
				users, err := pool(ctx)
				if err != nil {
					return nil, err
				}
				for _, u := range users {
					if seen[u.UserID] {
						continue
					}
					seen[u.UserID] = true
					out = append(out, u)
				}
			}
			return out, nil
		},
	}
}

// RecipientResolver runs the fallback chain against the user directory
type RecipientResolver struct {
	users   UserDirectory
	metrics *metrics.Collector
}

// NewRecipientResolver creates a recipient resolver; m may be nil
func NewRecipientResolver(users UserDirectory, m *metrics.Collector) *RecipientResolver {
	return &RecipientResolver{users: users, metrics: m}
}

// Resolve returns the first non-empty tier excluding involved parties.
// Exhaustion is logged as critical; it never returns an error.
func (r *RecipientResolver) Resolve(ctx context.Context, kind models.TemplateKind, c models.CaseRecord, tiers []RecipientTier) RecipientResult {
	exclude := make(map[int64]bool, len(c.InvolvedPartyIDs))
	for _, id := range c.InvolvedPartyIDs {
		exclude[id] = true
	}

	result := firstNonEmpty(ctx, tiers, exclude)
	r.metrics.RecipientTier(string(kind), result.Tier)

	log := logger.Component("recipients").WithField("case_id", c.ID).WithField("kind", kind)
	for _, err := range result.TierErrors {
		log.WithError(err).Warn("recipient tier failed to load, trying next tier")
	}
	if result.Empty() {
		log.WithField("critical", true).Error("no recipients available in any tier")
	} else {
		log.WithField("tier", result.Tier).WithField("count", len(result.Recipients)).Debug("recipients resolved")
	}
	return result
}

func (r *RecipientResolver) branchAdmins(c models.CaseRecord) func(ctx context.Context) ([]models.User, error) {
	return func(ctx context.Context) ([]models.User, error) { return r.users.BranchAdmins(ctx, c.BranchID) }
}

func (r *RecipientResolver) companyAdmins(c models.CaseRecord) func(ctx context.Context) ([]models.User, error) {
	return func(ctx context.Context) ([]models.User, error) { return r.users.CompanyAdmins(ctx, c.CompanyID) }
}

func (r *RecipientResolver) byType(c models.CaseRecord, t models.RecipientType) func(ctx context.Context) ([]models.User, error) {
	return func(ctx context.Context) ([]models.User, error) { return r.users.RecipientsByType(ctx, c.BranchID, t) }
}

func (r *RecipientResolver) superAdmins(ctx context.Context) ([]models.User, error) {
	return r.users.SuperAdmins(ctx)
}

// EscalationTiers: branch admins, then company admins with alternative recipients,
// then primary recipients, then super admins.
func (r *RecipientResolver) EscalationTiers(c models.CaseRecord) []RecipientTier {
	return []RecipientTier{
		{Label: TierBranchAdmins, Candidates: r.branchAdmins(c)},
		unionTier(TierCompanyAdminsAlternative, r.companyAdmins(c), r.byType(c, models.RecipientAlternative)),
		{Label: TierPrimaryRecipients, Candidates: r.byType(c, models.RecipientPrimary)},
		{Label: TierSuperAdmins, Candidates: r.superAdmins},
	}
}

// NewCaseTiers: primary recipients, then alternative recipients with branch admins,
// then company admins, then super admins.
func (r *RecipientResolver) NewCaseTiers(c models.CaseRecord) []RecipientTier {
	return []RecipientTier{
		{Label: TierPrimaryRecipients, Candidates: r.byType(c, models.RecipientPrimary)},
		unionTier(TierAlternativeBranchAdmins, r.byType(c, models.RecipientAlternative), r.branchAdmins(c)),
		{Label: TierCompanyAdmins, Candidates: r.companyAdmins(c)},
		{Label: TierSuperAdmins, Candidates: r.superAdmins},
	}
}

// NewMessageTiers: the assigned investigator, then the escalation chain
func (r *RecipientResolver) NewMessageTiers(c models.CaseRecord) []RecipientTier {
	assigned := RecipientTier{
		Label: TierAssignedInvestigator,
		Candidates: func(ctx context.Context) ([]models.User, error) {
			if !c.AssignedTo.Valid {
				return nil, nil
			}
			u, err := r.users.GetUser(ctx, c.AssignedTo.Int64)
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []models.User{*u}, nil
		},
	}
	return append([]RecipientTier{assigned}, r.EscalationTiers(c)...)
}
