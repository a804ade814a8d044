package amadeus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bher20/flightticker/internal/fares"
)

// ErrMissingCredentials is returned by Token when no client id/secret is set.
var ErrMissingCredentials = errors.New("amadeus: client id and secret are required")

// Config controls how the client talks to the Amadeus API.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// MaxResults caps the offers returned per search.
	MaxResults int
	Timeout    time.Duration
}

// Client is a minimal Amadeus Self-Service client for flight offers.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a client. A nil httpClient uses a client with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://test.api.amadeus.com"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Token acquires an access token using the OAuth2 client-credentials grant.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return "", ErrMissingCredentials
	}
	cc := clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.BaseURL + "/v1/security/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, c.http))
	if err != nil {
		return "", fmt.Errorf("amadeus token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("amadeus token: empty access token")
	}
	return tok.AccessToken, nil
}

// SearchRequest identifies one round trip from fares.Origin.
type SearchRequest struct {
	Destination string
	Window      fares.DateWindow
}

type offersResponse struct {
	Data []struct {
		Price struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
		ValidatingAirlineCodes []string `json:"validatingAirlineCodes"`
		Itineraries            []struct {
			Segments []struct {
				Departure struct {
					IataCode string `json:"iataCode"`
					At       string `json:"at"`
				} `json:"departure"`
				Arrival struct {
					IataCode string `json:"iataCode"`
					At       string `json:"at"`
				} `json:"arrival"`
				CarrierCode string `json:"carrierCode"`
			} `json:"segments"`
		} `json:"itineraries"`
	} `json:"data"`
}

// Search queries non-stop, one-adult offers in KRW. It returns an empty slice
// when the API has no offers for the dates.
func (c *Client) Search(ctx context.Context, token string, req SearchRequest) ([]fares.Offer, error) {
	q := url.Values{}
	q.Set("originLocationCode", fares.Origin)
	q.Set("destinationLocationCode", req.Destination)
	q.Set("departureDate", req.Window.Outbound.String())
	q.Set("returnDate", req.Window.Inbound.String())
	q.Set("adults", "1")
	q.Set("currencyCode", fares.Currency)
	q.Set("nonStop", "true")
	q.Set("max", strconv.Itoa(c.cfg.MaxResults))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/shopping/flight-offers?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("amadeus search %s: %w", req.Destination, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("amadeus search %s: status %d: %s", req.Destination, resp.StatusCode, body)
	}

	var payload offersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("amadeus decode: %w", err)
	}

	offers := make([]fares.Offer, 0, len(payload.Data))
	for _, d := range payload.Data {
		total, err := decimal.NewFromString(d.Price.Total)
		if err != nil {
			return nil, fmt.Errorf("amadeus price %q: %w", d.Price.Total, err)
		}
		o := fares.Offer{
			Price:    total.Round(0).IntPart(),
			Currency: d.Price.Currency,
		}
		if len(d.ValidatingAirlineCodes) > 0 {
			o.Carrier = d.ValidatingAirlineCodes[0]
		}
		if len(d.Itineraries) > 0 {
			if segs := d.Itineraries[0].Segments; len(segs) > 0 {
				o.OutboundDeparture = segs[0].Departure.At
				o.OutboundArrival = segs[len(segs)-1].Arrival.At
			}
		}
		if len(d.Itineraries) > 1 {
			if segs := d.Itineraries[1].Segments; len(segs) > 0 {
				o.InboundDeparture = segs[0].Departure.At
				o.InboundArrival = segs[len(segs)-1].Arrival.At
			}
		}
		offers = append(offers, o)
	}
	return offers, nil
}

// Fetch searches one route and window and selects the quote to record.
func (c *Client) Fetch(ctx context.Context, token, destination string, window fares.DateWindow) fares.FetchResult {
	offers, err := c.Search(ctx, token, SearchRequest{Destination: destination, Window: window})
	if err != nil {
		return fares.Failed(err)
	}
	q, ok := fares.SelectOffer(offers)
	if !ok {
		return fares.NoQuote()
	}
	return fares.Quoted(q)
}
