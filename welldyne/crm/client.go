// package crm queries the CRM's transaction API. Each captured transaction
// becomes one candidate trigger event per medication.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/maleexcel/welldyne-app/conf"
	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Transaction is one captured CRM sale, flattened to the fields the trigger
// pipeline needs.
type Transaction struct {
	CustomerID string `json:"customerId"`
	OrderID    string `json:"orderId"`
	OrderType  string `json:"orderType"` // NEW_SALE or RECURRING
	Medication string `json:"productName"`
	RxID       string `json:"rxId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	DOB        string `json:"dateOfBirth"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

// TypeHint maps the CRM's order cadence to the caller-side classification
// guess. Reclassification against prior triggers happens downstream.
func (t Transaction) TypeHint() models.TriggerType {
	if strings.EqualFold(t.OrderType, "RECURRING") {
		return models.TriggerRefill
	}
	return models.TriggerInitial
}

// TransactionPage is one page of query results together with the reported
// total, which drives the pagination loop.
type TransactionPage struct {
	TotalResults   int           `json:"totalResults"`
	Page           int           `json:"page"`
	ResultsPerPage int           `json:"resultsPerPage"`
	Data           []Transaction `json:"data"`
}

type TransactionQuerier interface {
	QueryAll(ctx context.Context, start, end time.Time) ([]Transaction, error)
}

type Config struct {
	BaseURL        string `conf:"CRM_BASE_URL"`
	Username       string `conf:"CRM_USERNAME"`
	Password       string `conf:"CRM_PASSWORD"`
	ResultsPerPage int    `conf:"CRM_RESULTS_PER_PAGE" conf_default:"200"`
	TimeoutMS      int    `conf:"CRM_TIMEOUT_MS" conf_default:"30000"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("invalid config, CRM_BASE_URL must be set")
	}
	return cfg, nil
}

type Client struct {
	cfg    Config
	http   *retryablehttp.Client
	logger logrus.FieldLogger
}

var _ TransactionQuerier = &Client{}

func NewClient(cfg Config, logger logrus.FieldLogger) *Client {
	c := retryablehttp.NewClient()
	c.HTTPClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	c.Logger = nil
	return &Client{cfg: cfg, http: c, logger: logger}
}

// QueryTransactions fetches one page of captured transactions in the window.
func (c *Client) QueryTransactions(ctx context.Context, start, end time.Time, page int) (*TransactionPage, error) {
	params := url.Values{}
	params.Set("username", c.cfg.Username)
	params.Set("password", c.cfg.Password)
	params.Set("startDate", start.Format("01/02/2006"))
	params.Set("endDate", end.Format("01/02/2006"))
	params.Set("startTime", start.Format("15:04:05"))
	params.Set("endTime", end.Format("15:04:05"))
	params.Set("page", strconv.Itoa(page))
	params.Set("resultsPerPage", strconv.Itoa(c.cfg.ResultsPerPage))

	u := fmt.Sprintf("%s/transactions/query/?%s", strings.TrimRight(c.cfg.BaseURL, "/"), params.Encode())
	req, err := retryablehttp.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not query CRM transactions")
	}
	defer resp.Body.Close()

	var body struct {
		Result  string          `json:"result"`
		Message TransactionPage `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "could not decode CRM transaction response")
	}
	if body.Result != "SUCCESS" {
		return nil, errors.Errorf("CRM transaction query returned %q", body.Result)
	}
	return &body.Message, nil
}

// QueryAll pages through the window until the reported total is exhausted.
func (c *Client) QueryAll(ctx context.Context, start, end time.Time) ([]Transaction, error) {
	var all []Transaction
	for page := 1; ; page++ {
		result, err := c.QueryTransactions(ctx, start, end, page)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Data...)
		c.logger.Infof("CRM page %d: %d transactions (%d/%d)", page, len(result.Data), len(all), result.TotalResults)
		if len(result.Data) == 0 || len(all) >= result.TotalResults {
			return all, nil
		}
	}
}

// QueryTransactionsRetry retries a page fetch indefinitely with a fixed
// one-second backoff. Only the historical batch-reclassification tool uses
// this; steady-state runs fail fast and skip instead.
func (c *Client) QueryTransactionsRetry(ctx context.Context, start, end time.Time, page int) (*TransactionPage, error) {
	var result *TransactionPage
	operation := func() error {
		var err error
		result, err = c.QueryTransactions(ctx, start, end, page)
		if err != nil {
			c.logger.Warnf("CRM page %d fetch failed, retrying: %s", page, err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(time.Second), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return result, nil
}
