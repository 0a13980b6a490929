package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// client is a tiny JSON client for a running tkfleet API.
type client struct {
	base  string
	http  *http.Client
	token string
	tid   string
}

func (c *client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.tid != "" {
		req.Header.Set("X-Tenant-Id", c.tid)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type session struct {
	Tokens struct {
		AccessToken string `json:"access_token"`
	} `json:"tokens"`
}

type entity struct {
	ID string `json:"id"`
}

type position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	base := getenv("TKFLEET_SMOKE_URL", "http://localhost:8080")
	rootTenant := os.Getenv("TKFLEET_SMOKE_TENANT_ID")
	user := getenv("TKFLEET_BOOTSTRAP_USER", "admin")
	password := os.Getenv("TKFLEET_BOOTSTRAP_PASSWORD")
	if rootTenant == "" || password == "" {
		log.Fatal("set TKFLEET_SMOKE_TENANT_ID and TKFLEET_BOOTSTRAP_PASSWORD")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	super := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}, tid: rootTenant}
	var s session
	if err := super.call(ctx, http.MethodPost, "/v1/auth/login", map[string]string{"username": user, "password": password}, &s); err != nil {
		log.Fatalf("login root: %v", err)
	}
	super.token = s.Tokens.AccessToken

	suffix := uuid.NewString()[:8]
	var tenant entity
	if err := super.call(ctx, http.MethodPost, "/v1/tenants", map[string]string{"name": "smoke-" + suffix}, &tenant); err != nil {
		log.Fatalf("create tenant: %v", err)
	}
	super.tid = tenant.ID

	driverPassword := "smoke-" + uuid.NewString()
	var driver entity
	if err := super.call(ctx, http.MethodPost, "/v1/users", map[string]string{
		"username": "driver-" + suffix,
		"password": driverPassword,
		"role":     "User",
	}, &driver); err != nil {
		log.Fatalf("create user: %v", err)
	}
	var vehicle entity
	if err := super.call(ctx, http.MethodPost, "/v1/vehicles", map[string]any{
		"owner_id":     driver.ID,
		"plate_number": "SMK-" + suffix,
		"type":         "van",
	}, &vehicle); err != nil {
		log.Fatalf("create vehicle: %v", err)
	}

	own := &client{base: base, http: super.http, tid: tenant.ID}
	if err := own.call(ctx, http.MethodPost, "/v1/auth/login", map[string]string{"username": "driver-" + suffix, "password": driverPassword}, &s); err != nil {
		log.Fatalf("login driver: %v", err)
	}
	own.token = s.Tokens.AccessToken

	path := "/v1/locations/vehicles/" + vehicle.ID
	if err := own.call(ctx, http.MethodPost, path, position{Latitude: 40, Longitude: 29}, nil); err != nil {
		log.Fatalf("update location: %v", err)
	}
	var got position
	if err := own.call(ctx, http.MethodGet, path, nil, &got); err != nil {
		log.Fatalf("read location: %v", err)
	}
	if got.Latitude != 40 || got.Longitude != 29 {
		log.Fatalf("unexpected position: %+v", got)
	}

	// clean up so repeated runs do not pile up tenants
	super.tid = rootTenant
	if err := super.call(ctx, http.MethodDelete, "/v1/tenants/"+tenant.ID, nil, nil); err != nil {
		log.Fatalf("delete tenant: %v", err)
	}

	fmt.Printf("✅ tkfleet smoke test passed: tenant=%s vehicle=%s\n", tenant.ID, vehicle.ID)
}
