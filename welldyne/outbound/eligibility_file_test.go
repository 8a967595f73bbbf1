package outbound

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/client"
	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/repository/testrepo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCustomers struct {
	customers map[string]*client.Customer
}

func (f *fakeCustomers) Customer(_ context.Context, customerID string) (*client.Customer, error) {
	if cust, ok := f.customers[customerID]; ok {
		return cust, nil
	}
	return nil, errors.Errorf("no customer %s", customerID)
}

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestLineLength(t *testing.T) {
	assert.Equal(t, 406, LineLength())
}

func TestFixedWidth(t *testing.T) {
	assert.Equal(t, "abc  ", fixedWidth("abc", 5))
	assert.Equal(t, "abcde", fixedWidth("abcdefgh", 5))
	assert.Equal(t, "   ", fixedWidth("", 3))
}

func seedEligibility(t *testing.T, repo *testrepo.Repository, customerID string, since, thru time.Time) {
	t.Helper()
	require.NoError(t, repo.UpsertEligibility(context.Background(), models.Eligibility{
		CustomerID:  customerID,
		MemberSince: since,
		MemberThru:  thru,
	}))
}

func TestGenerateSnapshot(t *testing.T) {
	repo := testrepo.New()
	asOf := time.Date(2024, 3, 4, 4, 30, 0, 0, time.UTC)
	since := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)

	seedEligibility(t, repo, "1002", since, asOf.AddDate(0, 0, 5))
	seedEligibility(t, repo, "1001", since, asOf.AddDate(0, 0, 10))
	// Expired past the grace window; must not appear.
	seedEligibility(t, repo, "1003", since, asOf.AddDate(0, 0, -10))

	customers := &fakeCustomers{customers: map[string]*client.Customer{
		"1001": {ID: "1001", FirstName: "John", LastName: "Doe", Sex: "M", DOB: "19800115", City: "Austin", State: "TX", PostalCode: "78701"},
		"1002": {ID: "1002", FirstName: "Jane", LastName: "Roe", Sex: "F", DOB: "19751102", City: "Dallas", State: "TX", PostalCode: "75001"},
	}}

	builder := NewEligibilityFileBuilder(repo, customers, testLogger(), "MALEEXCEL", "RWTMEXCEL")
	data, err := builder.Generate(context.Background(), asOf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Len(t, line, LineLength())
	}

	// Ordered by customer id, so the file is diffable run over run.
	assert.True(t, strings.Contains(lines[0], "Doe"))
	assert.True(t, strings.Contains(lines[1], "Roe"))
	assert.True(t, strings.HasPrefix(lines[0], fixedWidth("MALEEXCEL", 15)))
	assert.True(t, strings.Contains(lines[0], "001001"))
}

func TestGenerateIsDeterministic(t *testing.T) {
	repo := testrepo.New()
	asOf := time.Date(2024, 3, 4, 4, 30, 0, 0, time.UTC)
	since := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	seedEligibility(t, repo, "1001", since, asOf.AddDate(0, 0, 10))

	customers := &fakeCustomers{customers: map[string]*client.Customer{
		"1001": {ID: "1001", FirstName: "John", LastName: "Doe"},
	}}

	builder := NewEligibilityFileBuilder(repo, customers, testLogger(), "MALEEXCEL", "RWTMEXCEL")
	first, err := builder.Generate(context.Background(), asOf)
	require.NoError(t, err)
	second, err := builder.Generate(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateSkipsMemberWithBadDemographics(t *testing.T) {
	repo := testrepo.New()
	asOf := time.Date(2024, 3, 4, 4, 30, 0, 0, time.UTC)
	since := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	seedEligibility(t, repo, "1001", since, asOf.AddDate(0, 0, 10))
	seedEligibility(t, repo, "1002", since, asOf.AddDate(0, 0, 10))

	// 1002 has no demographic record; its line is skipped, not the file.
	customers := &fakeCustomers{customers: map[string]*client.Customer{
		"1001": {ID: "1001", FirstName: "John", LastName: "Doe"},
	}}

	builder := NewEligibilityFileBuilder(repo, customers, testLogger(), "MALEEXCEL", "RWTMEXCEL")
	data, err := builder.Generate(context.Background(), asOf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 1)
}
