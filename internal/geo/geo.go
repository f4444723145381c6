package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Location is the best-effort origin of a caller. Empty fields mean unknown.
type Location struct {
	CountryCode string `json:"country_code,omitempty"`
	City        string `json:"city,omitempty"`
}

func (l Location) Known() bool { return l.CountryCode != "" || l.City != "" }

// Locator never fails: any problem degrades to an unknown Location.
type Locator interface {
	Lookup(ctx context.Context, ip string) Location
}

// Unknown is a Locator that never knows anything.
type Unknown struct{}

func (Unknown) Lookup(context.Context, string) Location { return Location{} }

type Cache interface {
	GetLocation(ctx context.Context, ip string) (Location, bool, error)
	SetLocation(ctx context.Context, ip string, loc Location, ttl time.Duration) error
}

// IPAPI resolves addresses through the ip-api.com JSON endpoint.
type IPAPI struct {
	BaseURL  string
	Client   *http.Client
	Cache    Cache
	CacheTTL time.Duration
}

func NewIPAPI(baseURL string, cache Cache) *IPAPI {
	if baseURL == "" {
		baseURL = "http://ip-api.com"
	}
	return &IPAPI{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Client:   &http.Client{Timeout: 3 * time.Second},
		Cache:    cache,
		CacheTTL: 24 * time.Hour,
	}
}

type ipAPIResp struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	City        string `json:"city,omitempty"`
}

func (g *IPAPI) Lookup(ctx context.Context, ip string) Location {
	ip = strings.TrimSpace(ip)
	if !Routable(ip) {
		return Location{}
	}

	if g.Cache != nil {
		if loc, ok, err := g.Cache.GetLocation(ctx, ip); err == nil && ok {
			return loc
		} else if err != nil {
			log.Printf("[geo] cache get ip=%s err=%v", ip, err)
		}
	}

	loc, err := g.fetch(ctx, ip)
	if err != nil {
		log.Printf("[geo] lookup ip=%s err=%v", ip, err)
		return Location{}
	}

	if g.Cache != nil {
		if err := g.Cache.SetLocation(ctx, ip, loc, g.CacheTTL); err != nil {
			log.Printf("[geo] cache set ip=%s err=%v", ip, err)
		}
	}
	return loc
}

func (g *IPAPI) fetch(ctx context.Context, ip string) (Location, error) {
	u := fmt.Sprintf("%s/json/%s?fields=status,message,countryCode,city", g.BaseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Location{}, err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo: status %d", resp.StatusCode)
	}
	var decoded ipAPIResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Location{}, err
	}
	if decoded.Status != "success" {
		return Location{}, fmt.Errorf("geo: %s", decoded.Message)
	}
	return Location{CountryCode: decoded.CountryCode, City: decoded.City}, nil
}

// Routable reports whether ip is a public address worth looking up.
func Routable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !(parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast())
}
