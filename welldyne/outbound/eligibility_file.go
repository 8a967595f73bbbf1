package outbound

import (
	"context"
	"strings"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/client"
	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/repository"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// expiredGraceDays keeps recently-expired windows in the snapshot so a
// missed run never silently drops a member mid-claim.
const expiredGraceDays = 7

const (
	personCode   = "01"
	relationship = "1"
)

// EligibilityFileBuilder serializes the entire active eligibility set into
// one fixed-width file. Every run re-derives the full snapshot rather than a
// delta, which is self-healing against missed runs.
type EligibilityFileBuilder struct {
	repo      repository.Repository
	customers client.CustomerLookup
	logger    logrus.FieldLogger

	// GroupID and Template are the partner-assigned constants stamped on
	// every line.
	GroupID  string
	Template string
}

func NewEligibilityFileBuilder(repo repository.Repository, customers client.CustomerLookup,
	logger logrus.FieldLogger, groupID, template string) *EligibilityFileBuilder {
	return &EligibilityFileBuilder{
		repo:      repo,
		customers: customers,
		logger:    logger,
		GroupID:   groupID,
		Template:  template,
	}
}

// Generate renders the full snapshot as of the given date. Output is
// deterministic for unchanged data: members are ordered by customer id and
// every line is exactly LineLength characters.
func (b *EligibilityFileBuilder) Generate(ctx context.Context, asOf time.Time) ([]byte, error) {
	cutoff := asOf.AddDate(0, 0, -expiredGraceDays)
	eligs, err := b.repo.GetEligibilities(ctx, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "could not load eligibility windows")
	}

	var sb strings.Builder
	count := 0
	for _, elig := range eligs {
		line, err := b.renderMember(ctx, elig)
		if err != nil {
			// One member with bad demographics must not lose the snapshot.
			b.logger.Errorf("Skipping eligibility line for customer %s: %s", elig.CustomerID, err)
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		count++
	}

	b.logger.Infof("Rendered eligibility snapshot: %d members, %d skipped", count, len(eligs)-count)
	return []byte(sb.String()), nil
}

func (b *EligibilityFileBuilder) renderMember(ctx context.Context, elig models.Eligibility) (string, error) {
	cust, err := b.customers.Customer(ctx, elig.CustomerID)
	if err != nil {
		return "", err
	}

	memberID := models.PadMemberID(elig.CustomerID)
	return renderLine(map[string]string{
		"group_id":         b.GroupID,
		"member_id":        memberID,
		"person_code":      personCode,
		"relationship":     relationship,
		"last_name":        cust.LastName,
		"first_name":       cust.FirstName,
		"middle_initial":   cust.MiddleInitial,
		"sex":              cust.Sex,
		"dob":              cust.DOB,
		"address_1":        cust.Address1,
		"address_2":        cust.Address2,
		"city":             cust.City,
		"state":            cust.State,
		"zip":              cust.PostalCode,
		"phone":            cust.Phone,
		"family_id":        memberID,
		"effective_from":   elig.MemberSince.Format("20060102"),
		"effective_thru":   elig.MemberThru.Format("20060102"),
		"cardholder_last":  cust.LastName,
		"cardholder_first": cust.FirstName,
		"email":            cust.Email,
		"template":         b.Template,
	}), nil
}
