package classifier

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/repository/testrepo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type fakeAllergies struct {
	text string
	err  error
}

func (f *fakeAllergies) Allergies(ctx context.Context, customerID string) (string, error) {
	return f.text, f.err
}

type ClassifierTestSuite struct {
	suite.Suite
	repo      *testrepo.Repository
	allergies *fakeAllergies
	cls       *Classifier
	now       time.Time
}

func (s *ClassifierTestSuite) SetupTest() {
	s.repo = testrepo.New()
	s.allergies = &fakeAllergies{text: "penicillin"}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s.cls = New(s.repo, s.allergies, logger)
	s.now = time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)
	s.cls.SetNow(func() time.Time { return s.now })
}

func (s *ClassifierTestSuite) event() Event {
	return Event{
		CRMType:    models.CRMTypeKonnektive,
		CRMID:      "1001",
		CRMOrder:   "ORD-1",
		Medication: "Sildenafil",
		RxID:       "RX-A",
		TypeHint:   models.TriggerInitial,
		FirstName:  "John",
		LastName:   "Doe",
		DOB:        "19800115",
		Address1:   "123 Main St",
		City:       "Austin",
		State:      "TX",
		PostalCode: "78701",
	}
}

func (s *ClassifierTestSuite) TestClassifyFirstOrderIsInitial() {
	result, err := s.cls.Classify(context.Background(), s.event())
	s.NoError(err)
	s.Equal(models.TriggerInitial, result.Type)

	s.Len(s.repo.Triggers, 1)
	s.Equal(models.TriggerInitial, s.repo.Triggers[0].Type)
	s.Equal(result.Line, s.repo.Triggers[0].Raw)
}

func (s *ClassifierTestSuite) TestClassifyRecurringPrescriptionDemotedToRefill() {
	// Same rx under a new order number looks initial to the CRM but is a
	// refill of the script already on file.
	first := s.event()
	_, err := s.cls.Classify(context.Background(), first)
	s.NoError(err)

	second := s.event()
	second.CRMOrder = "ORD-2"
	result, err := s.cls.Classify(context.Background(), second)
	s.NoError(err)
	s.Equal(models.TriggerRefill, result.Type)
}

func (s *ClassifierTestSuite) TestClassifyPrescriptionChangePromotedToInitial() {
	first := s.event()
	_, err := s.cls.Classify(context.Background(), first)
	s.NoError(err)

	second := s.event()
	second.CRMOrder = "ORD-2"
	second.RxID = "RX-B"
	second.TypeHint = models.TriggerRefill
	result, err := s.cls.Classify(context.Background(), second)
	s.NoError(err)
	s.Equal(models.TriggerInitial, result.Type)
}

func (s *ClassifierTestSuite) TestClassifyRefillCarriesRxNumber() {
	s.NoError(s.repo.UpsertRxNumber(context.Background(), models.RxNumber{
		MemberID: "001001",
		Number:   "7654321",
	}))

	first := s.event()
	_, err := s.cls.Classify(context.Background(), first)
	s.NoError(err)

	second := s.event()
	second.CRMOrder = "ORD-2"
	second.TypeHint = models.TriggerRefill
	result, err := s.cls.Classify(context.Background(), second)
	s.NoError(err)
	s.Equal(models.TriggerRefill, result.Type)

	trigger, err := s.repo.GetLatestTrigger(context.Background(), models.CRMTypeKonnektive, "1001")
	s.NoError(err)
	s.Equal("7654321", trigger.RxNumber)
}

func (s *ClassifierTestSuite) TestClassifyExtendsEligibilityWindow() {
	_, err := s.cls.Classify(context.Background(), s.event())
	s.NoError(err)

	elig := s.repo.Eligibilities["1001"]
	s.Require().NotNil(elig)
	since := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	s.Equal(since, elig.MemberSince)
	s.Equal(since.AddDate(0, 0, 15), elig.MemberThru)

	// A later event slides member_thru forward without touching member_since.
	s.now = s.now.AddDate(0, 0, 10)
	second := s.event()
	second.CRMOrder = "ORD-2"
	_, err = s.cls.Classify(context.Background(), second)
	s.NoError(err)

	elig = s.repo.Eligibilities["1001"]
	s.Equal(since, elig.MemberSince)
	s.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 15), elig.MemberThru)
}

func (s *ClassifierTestSuite) TestClassifyLineLayout() {
	result, err := s.cls.Classify(context.Background(), s.event())
	s.NoError(err)

	fields := strings.Split(result.Line, ",")
	s.Require().Len(fields, 13)
	s.Equal("initial", fields[0])
	s.Equal("Sildenafil", fields[1])
	s.Equal("RX-A", fields[2])
	s.Equal("001001", fields[11])
	s.Equal("penicillin", fields[12])
}

func (s *ClassifierTestSuite) TestClassifyAllergyLookupFailureSendsBlank() {
	s.allergies.err = errors.New("allergy service down")

	result, err := s.cls.Classify(context.Background(), s.event())
	s.NoError(err)
	s.True(strings.HasSuffix(result.Line, ","))
}

func (s *ClassifierTestSuite) TestClassifyRejectsIncompleteEvent() {
	event := s.event()
	event.Medication = ""
	_, err := s.cls.Classify(context.Background(), event)
	s.Error(err)
	s.Empty(s.repo.Triggers)
}

func (s *ClassifierTestSuite) TestClassifyIdempotentForSameOrder() {
	_, err := s.cls.Classify(context.Background(), s.event())
	s.NoError(err)
	_, err = s.cls.Classify(context.Background(), s.event())
	s.NoError(err)
	s.Len(s.repo.Triggers, 1)
}

func TestClassifierTestSuite(t *testing.T) {
	suite.Run(t, new(ClassifierTestSuite))
}

func TestEventValidate(t *testing.T) {
	event := Event{
		CRMType:    models.CRMTypeKonnektive,
		CRMID:      "1001",
		CRMOrder:   "ORD-1",
		Medication: "Sildenafil",
		TypeHint:   models.TriggerType("bogus"),
	}
	assert.EqualError(t, event.validate(), `event has invalid type hint "bogus"`)
}
