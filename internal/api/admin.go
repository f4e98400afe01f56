package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Grenzen für das Anlernen von Gesichtern
const (
	maxEnrollImages    = 10
	maxEnrollImageSize = 5 * 1024 * 1024
)

var enrollExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Person ist eine im Dienst registrierte Person
type Person struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AttendanceRecord ist ein Anwesenheitsereignis aus dem Admin-Log
type AttendanceRecord struct {
	ID        int64   `json:"id"`
	Day       string  `json:"day"`
	TS        string  `json:"ts"`
	DeviceID  string  `json:"device_id"`
	FinalName string  `json:"final_name"`
	EventType string  `json:"event_type"`
	Status    string  `json:"status"`
	Distance  float64 `json:"distance"`
}

// EventFilter schränkt die Abfrage des Ereignislogs ein
type EventFilter struct {
	Limit    int
	Offset   int
	Status   string
	Name     string
	Day      string
	DeviceID string
}

// MonthlyRow ist eine Zeile des Monatsberichts
type MonthlyRow struct {
	PersonName  string `json:"person_name"`
	DaysPresent int    `json:"days_present"`
	LateCount   int    `json:"late_count"`
	MissingOut  int    `json:"missing_out"`
}

// MonthlyReport ist der Monatsbericht des Dienstes
type MonthlyReport struct {
	Month string       `json:"month"`
	Data  []MonthlyRow `json:"data"`
}

// EnrollResult ist die Antwort auf ein Anlernen
type EnrollResult struct {
	EmbeddingsAdded int `json:"embeddings_added"`
}

// ResetResult ist die Antwort auf ein Zurücksetzen der Anwesenheitsdaten
type ResetResult struct {
	EventsDeleted int `json:"events_deleted"`
	DailyDeleted  int `json:"daily_deleted"`
}

// SetAdminToken übernimmt ein Admin-Token und bereinigt es, damit niemals
// "Bearer Bearer ..." oder Anführungszeichen auf die Leitung gehen
func (c *Client) SetAdminToken(token string) {
	tok := strings.TrimSpace(token)
	tok = strings.Trim(tok, `"'`)
	if len(tok) >= 7 && strings.EqualFold(tok[:7], "bearer ") {
		tok = strings.TrimSpace(tok[7:])
	}

	c.mu.Lock()
	c.adminToken = tok
	c.mu.Unlock()
}

// AdminToken liefert das aktuelle Admin-Token
func (c *Client) AdminToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adminToken
}

// HasAdminToken meldet, ob ein Admin angemeldet ist
func (c *Client) HasAdminToken() bool {
	return c.AdminToken() != ""
}

// AdminLogin meldet einen Administrator an und merkt sich das Token
func (c *Client) AdminLogin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}
	if len(username) > 100 || len(password) > 100 {
		return fmt.Errorf("username or password too long")
	}

	apiURL, err := url.JoinPath(c.cfg.BaseURL, "/admin/login")
	if err != nil {
		return fmt.Errorf("failed to create API URL: %w", err)
	}

	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("failed to marshal login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Infof("Admin login attempt for user: %s", username)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection error during login: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("invalid username or password")
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("too many login attempts - please wait")
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error: %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login error: %s", parseErrorDetail(bodyBytes))
	}

	var data struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
		JWT         string `json:"jwt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}

	token := data.AccessToken
	if token == "" {
		token = data.Token
	}
	if token == "" {
		token = data.JWT
	}
	if token == "" {
		return fmt.Errorf("token not found in login response")
	}

	c.SetAdminToken(token)
	log.Infof("Admin login successful for user: %s", username)
	return nil
}

// adminRequest führt eine authentifizierte Anfrage aus und liefert den Body
func (c *Client) adminRequest(ctx context.Context, client *http.Client, method, path string, body io.Reader, contentType string) ([]byte, error) {
	token := c.AdminToken()
	if token == "" {
		return nil, fmt.Errorf("admin login required")
	}

	// Query-Anteil vor dem Pfad-Join abtrennen, JoinPath würde das '?' maskieren
	rawQuery := ""
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path, rawQuery = path[:idx], path[idx+1:]
	}

	apiURL, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create API URL: %w", err)
	}
	if rawQuery != "" {
		apiURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, parseErrorDetail(bodyBytes))
	}

	return bodyBytes, nil
}

// AdminListPersons ruft alle registrierten Personen ab
func (c *Client) AdminListPersons(ctx context.Context) ([]Person, error) {
	body, err := c.adminRequest(ctx, c.httpClient, http.MethodGet, "/admin/persons", nil, "")
	if err != nil {
		return nil, err
	}
	var persons []Person
	if err := json.Unmarshal(body, &persons); err != nil {
		return nil, fmt.Errorf("failed to decode persons: %w", err)
	}
	return persons, nil
}

// AdminCreatePerson legt eine neue Person an
func (c *Client) AdminCreatePerson(ctx context.Context, name string) (*Person, error) {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	body, err := c.adminRequest(ctx, c.httpClient, http.MethodPost, "/admin/persons", bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	var person Person
	if err := json.Unmarshal(body, &person); err != nil {
		return nil, fmt.Errorf("failed to decode person: %w", err)
	}
	log.Infof("Created person: %s (ID %d)", person.Name, person.ID)
	return &person, nil
}

// AdminDeletePerson löscht eine Person anhand ihrer ID
func (c *Client) AdminDeletePerson(ctx context.Context, personID int64) error {
	if personID <= 0 {
		return fmt.Errorf("invalid person ID")
	}
	_, err := c.adminRequest(ctx, c.httpClient, http.MethodDelete, "/admin/persons/"+strconv.FormatInt(personID, 10), nil, "")
	return err
}

// AdminEnrollPerson lernt eine Person mit lokalen Bilddateien an.
// Die Dateien werden vor dem Upload validiert (Anzahl, Größe, Endung).
func (c *Client) AdminEnrollPerson(ctx context.Context, personID int64, imagePaths []string) (*EnrollResult, error) {
	if personID <= 0 {
		return nil, fmt.Errorf("invalid person ID")
	}
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("no images provided")
	}
	if len(imagePaths) > maxEnrollImages {
		return nil, fmt.Errorf("too many images - maximum %d allowed", maxEnrollImages)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, path := range imagePaths {
		ext := strings.ToLower(filepath.Ext(path))
		if !enrollExtensions[ext] {
			return nil, fmt.Errorf("invalid image format: %s", path)
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		if info.Size() > maxEnrollImageSize {
			return nil, fmt.Errorf("image too large: %s (%d bytes)", path, info.Size())
		}

		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open image '%s': %w", path, err)
		}

		part, err := writer.CreateFormFile("files", filepath.Base(path))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to copy image data: %w", err)
		}
		file.Close()
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	log.Infof("Enrolling person %d with %d images", personID, len(imagePaths))

	respBody, err := c.adminRequest(ctx, c.longClient, http.MethodPost,
		fmt.Sprintf("/admin/persons/%d/enroll", personID), body, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var result EnrollResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode enroll response: %w", err)
	}
	return &result, nil
}

// AdminListEvents ruft das Ereignislog mit optionalen Filtern ab
func (c *Client) AdminListEvents(ctx context.Context, filter EventFilter) ([]AttendanceRecord, error) {
	q := url.Values{}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Name != "" {
		q.Set("name", filter.Name)
	}
	if filter.Day != "" {
		q.Set("day", filter.Day)
	}
	if filter.DeviceID != "" {
		q.Set("device_id", filter.DeviceID)
	}

	path := "/admin/events"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	body, err := c.adminRequest(ctx, c.httpClient, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var events []AttendanceRecord
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// AdminMonthlyReport ruft den Monatsbericht ab (Monat im Format YYYY-MM)
func (c *Client) AdminMonthlyReport(ctx context.Context, month string) (*MonthlyReport, error) {
	body, err := c.adminRequest(ctx, c.httpClient, http.MethodGet, "/admin/reports/monthly?month="+url.QueryEscape(month), nil, "")
	if err != nil {
		return nil, err
	}
	var report MonthlyReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// AdminExportCSV lädt den Anwesenheitsexport als CSV herunter
func (c *Client) AdminExportCSV(ctx context.Context, month string) ([]byte, error) {
	path := "/admin/reports/export/csv"
	if month != "" {
		path += "?month=" + url.QueryEscape(month)
	}
	return c.adminRequest(ctx, c.longClient, http.MethodGet, path, nil, "")
}

// AdminRebuildCache stößt den Neuaufbau des Erkennungs-Caches an.
// Der Aufruf kann lange dauern und nutzt deshalb den langen Timeout.
func (c *Client) AdminRebuildCache(ctx context.Context) error {
	_, err := c.adminRequest(ctx, c.longClient, http.MethodPost, "/admin/rebuild_cache", nil, "")
	return err
}

// AdminResetAttendance löscht alle Anwesenheitsdaten im Dienst
func (c *Client) AdminResetAttendance(ctx context.Context) (*ResetResult, error) {
	body, err := c.adminRequest(ctx, c.httpClient, http.MethodPost, "/admin/reset_attendance", nil, "")
	if err != nil {
		return nil, err
	}
	var result ResetResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode reset response: %w", err)
	}
	return &result, nil
}
