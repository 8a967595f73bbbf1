// package client holds the thin HTTP clients for the collaborator services
// the trigger pipeline depends on: customer demographics, allergy text, and
// shipped-order notification delivery.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/maleexcel/welldyne-app/conf"
	"github.com/pkg/errors"
)

// Customer is the demographic record returned by the customer service. It
// carries every field the eligibility file layout can render; missing fields
// stay empty and render as spaces.
type Customer struct {
	ID            string `json:"id"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	MiddleInitial string `json:"middleInitial"`
	Sex           string `json:"sex"`
	DOB           string `json:"dob"` // YYYYMMDD
	Address1      string `json:"address1"`
	Address2      string `json:"address2"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postalCode"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
}

type CustomerLookup interface {
	Customer(ctx context.Context, customerID string) (*Customer, error)
}

type AllergyLookup interface {
	// Allergies returns the free-text allergy list for a customer. An empty
	// string is a valid answer.
	Allergies(ctx context.Context, customerID string) (string, error)
}

type NotificationSender interface {
	// ShippedNotice forwards a tracking code to the downstream notification
	// service so the customer hears about the shipment.
	ShippedNotice(ctx context.Context, customerID, medication, tracking string) error
}

type Config struct {
	CustomerURL     string `conf:"CUSTOMER_SERVICE_URL"`
	AllergyURL      string `conf:"ALLERGY_SERVICE_URL"`
	NotificationURL string `conf:"NOTIFICATION_SERVICE_URL"`
	TimeoutMS       int    `conf:"COLLABORATOR_TIMEOUT_MS" conf_default:"5000"`
	RetryMax        int    `conf:"COLLABORATOR_RETRY_MAX" conf_default:"3"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPClient implements all three collaborator lookups against their
// configured base URLs.
type HTTPClient struct {
	cfg  Config
	http *retryablehttp.Client
}

var _ CustomerLookup = &HTTPClient{}
var _ AllergyLookup = &HTTPClient{}
var _ NotificationSender = &HTTPClient{}

func NewHTTPClient(cfg Config) *HTTPClient {
	c := retryablehttp.NewClient()
	c.RetryMax = cfg.RetryMax
	c.HTTPClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	c.Logger = nil
	return &HTTPClient{cfg: cfg, http: c}
}

func (c *HTTPClient) Customer(ctx context.Context, customerID string) (*Customer, error) {
	var cust Customer
	u := fmt.Sprintf("%s/customer/%s", strings.TrimRight(c.cfg.CustomerURL, "/"), url.PathEscape(customerID))
	if err := c.getJSON(ctx, u, &cust); err != nil {
		return nil, errors.Wrapf(err, "could not look up customer %s", customerID)
	}
	return &cust, nil
}

func (c *HTTPClient) Allergies(ctx context.Context, customerID string) (string, error) {
	var body struct {
		Allergies string `json:"allergies"`
	}
	u := fmt.Sprintf("%s/allergies/%s", strings.TrimRight(c.cfg.AllergyURL, "/"), url.PathEscape(customerID))
	if err := c.getJSON(ctx, u, &body); err != nil {
		return "", errors.Wrapf(err, "could not look up allergies for customer %s", customerID)
	}
	return body.Allergies, nil
}

func (c *HTTPClient) ShippedNotice(ctx context.Context, customerID, medication, tracking string) error {
	form := url.Values{}
	form.Set("customerId", customerID)
	form.Set("medication", medication)
	form.Set("tracking", tracking)

	u := fmt.Sprintf("%s/shipped", strings.TrimRight(c.cfg.NotificationURL, "/"))
	req, err := retryablehttp.NewRequest("POST", u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "could not deliver shipped notice for customer %s", customerID)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("shipped notice for customer %s returned %s", customerID, strconv.Itoa(resp.StatusCode))
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := retryablehttp.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("request returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
