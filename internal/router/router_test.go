package router_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/medledger-api/internal/handler"
	accessHandler "github.com/medledger/medledger-api/internal/handler/access"
	authHandler "github.com/medledger/medledger-api/internal/handler/auth"
	recordHandler "github.com/medledger/medledger-api/internal/handler/record"
	userHandler "github.com/medledger/medledger-api/internal/handler/user"
	"github.com/medledger/medledger-api/internal/middleware"
	"github.com/medledger/medledger-api/internal/repository/jsonstore"
	"github.com/medledger/medledger-api/internal/router"
	accessService "github.com/medledger/medledger-api/internal/service/access"
	authService "github.com/medledger/medledger-api/internal/service/auth"
	eventService "github.com/medledger/medledger-api/internal/service/event"
	recordService "github.com/medledger/medledger-api/internal/service/record"
	userService "github.com/medledger/medledger-api/internal/service/user"
	pkgauth "github.com/medledger/medledger-api/pkg/auth"
	"github.com/medledger/medledger-api/pkg/metrics"
)

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func buildServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, handler.RegisterValidators())

	reg := prometheus.NewRegistry()
	m := metrics.New("medledger_test", reg)

	store, err := jsonstore.Open(filepath.Join(dir, "data.json"), zerolog.Nop(), m)
	require.NoError(t, err)

	userRepo := jsonstore.NewUserRepository(store)
	recordRepo := jsonstore.NewRecordRepository(store)
	grantRepo := jsonstore.NewGrantRepository(store)

	events := eventService.NewService(nil, zerolog.Nop(), m)
	jwtSvc := pkgauth.NewJWTService("test-secret", time.Hour)
	userSvc := userService.NewService(userRepo, events)
	recordSvc := recordService.NewService(recordRepo, filepath.Join(dir, "uploads"), events, zerolog.Nop())
	accessSvc := accessService.NewService(grantRepo, recordRepo, userRepo, events)
	authSvc := authService.NewService(userRepo, jwtSvc)

	h := handler.NewHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r := router.NewRouter(
		router.Config{
			CORS:      middleware.DefaultCORSConfig(),
			SizeLimit: middleware.DefaultSizeLimitConfig(),
			Timeout:   10 * time.Second,
		},
		middleware.NewAuthMiddleware(authSvc),
		authHandler.NewHandler(authSvc, 3600),
		userHandler.NewHandler(userSvc),
		recordHandler.NewHandler(recordSvc, accessSvc, recordHandler.DefaultUploadLimits()),
		accessHandler.NewHandler(accessSvc),
		h,
		m,
	)
	r.Setup()
	return r.Engine()
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func login(t *testing.T, srv http.Handler, address, role string) string {
	t.Helper()
	w, resp := doJSON(t, srv, http.MethodPost, "/api/auth/login",
		map[string]string{"address": address, "role": role}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var tokens struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &tokens))
	require.NotEmpty(t, tokens.Token)
	return tokens.Token
}

func uploadRecord(t *testing.T, srv http.Handler, token, patient, title string, content []byte) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", title))
	require.NoError(t, mw.WriteField("recordType", "lab-result"))
	require.NoError(t, mw.WriteField("recordDate", "2024-01-01"))
	require.NoError(t, mw.WriteField("patientAddress", patient))
	part, err := mw.CreateFormFile("file", "scan.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/records", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestRegistrationAndCheck(t *testing.T) {
	srv := buildServer(t)

	w, _ := doJSON(t, srv, http.MethodPost, "/api/users",
		map[string]string{"address": "0xPatient1", "role": "patient"}, "")
	assert.Equal(t, http.StatusCreated, w.Code)

	// Duplicate registration conflicts regardless of case.
	w, _ = doJSON(t, srv, http.MethodPost, "/api/users",
		map[string]string{"address": "0xPATIENT1", "role": "doctor"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, resp := doJSON(t, srv, http.MethodGet, "/api/users/check/0xpatient1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	var check struct {
		Exists bool   `json:"exists"`
		Role   string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &check))
	assert.True(t, check.Exists)
	assert.Equal(t, "patient", check.Role)

	w, resp = doJSON(t, srv, http.MethodGet, "/api/users/check/0xUnknown", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &check))
	assert.False(t, check.Exists)

	// Invalid addresses are rejected at the boundary.
	w, _ = doJSON(t, srv, http.MethodPost, "/api/users",
		map[string]string{"address": "not-a-wallet", "role": "patient"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginRequiresMatchingRole(t *testing.T) {
	srv := buildServer(t)

	doJSON(t, srv, http.MethodPost, "/api/users",
		map[string]string{"address": "0xP", "role": "patient"}, "")

	w, _ := doJSON(t, srv, http.MethodPost, "/api/auth/login",
		map[string]string{"address": "0xP", "role": "doctor"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := login(t, srv, "0xP", "patient")
	assert.NotEmpty(t, token)
}

func TestRecordsRequireSession(t *testing.T) {
	srv := buildServer(t)

	w, _ := doJSON(t, srv, http.MethodGet, "/api/records?patientAddress=0xP", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, srv, http.MethodGet, "/api/records?patientAddress=0xP", nil, "garbage-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestShareAndRevokeLifecycle(t *testing.T) {
	srv := buildServer(t)

	doJSON(t, srv, http.MethodPost, "/api/users", map[string]string{"address": "0xP", "role": "patient"}, "")
	doJSON(t, srv, http.MethodPost, "/api/users", map[string]string{"address": "0xD", "role": "doctor"}, "")
	patientToken := login(t, srv, "0xP", "patient")
	doctorToken := login(t, srv, "0xD", "doctor")

	// Patient uploads "Lab A"; record id 1 with both hashes populated.
	w, resp := uploadRecord(t, srv, patientToken, "0xP", "Lab A", []byte("png bytes"))
	require.Equal(t, http.StatusCreated, w.Code)
	var rec struct {
		ID              int64  `json:"id"`
		FileHash        string `json:"file_hash"`
		TransactionHash string `json:"transaction_hash"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	assert.Equal(t, int64(1), rec.ID)
	assert.NotEmpty(t, rec.FileHash)
	assert.NotEmpty(t, rec.TransactionHash)

	// Uploading to someone else's address is forbidden.
	w, _ = uploadRecord(t, srv, doctorToken, "0xP", "Sneaky", []byte("x"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// No grant yet: the doctor cannot list or view.
	w, _ = doJSON(t, srv, http.MethodGet, "/api/records?patientAddress=0xP", nil, doctorToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = doJSON(t, srv, http.MethodGet, "/api/records/view/1", nil, doctorToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Granting someone else's records is forbidden.
	w, _ = doJSON(t, srv, http.MethodPost, "/api/access", map[string]interface{}{
		"patientAddress": "0xP",
		"doctorAddress":  "0xD",
		"recordIds":      []int64{1},
		"accessDuration": "7-days",
	}, doctorToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Patient grants the doctor access to record 1 for 7 days.
	w, resp = doJSON(t, srv, http.MethodPost, "/api/access", map[string]interface{}{
		"patientAddress": "0xP",
		"doctorAddress":  "0xD",
		"recordIds":      []int64{1},
		"accessDuration": "7-days",
	}, patientToken)
	require.Equal(t, http.StatusCreated, w.Code)
	var grant struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &grant))

	// Granting an unowned record id fails validation.
	w, _ = doJSON(t, srv, http.MethodPost, "/api/access", map[string]interface{}{
		"patientAddress": "0xP",
		"doctorAddress":  "0xD",
		"recordIds":      []int64{999},
		"accessDuration": "1-day",
	}, patientToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The doctor now sees the grant and record 1.
	w, resp = doJSON(t, srv, http.MethodGet, "/api/access/records?doctorAddress=0xD", nil, doctorToken)
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		Grants  []json.RawMessage `json:"grants"`
		Records []struct {
			ID int64 `json:"id"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	require.Len(t, view.Grants, 1)
	require.Len(t, view.Records, 1)
	assert.Equal(t, int64(1), view.Records[0].ID)

	// View and download both stream the file bytes.
	req := httptest.NewRequest(http.MethodGet, "/api/records/view/1", nil)
	req.Header.Set("Authorization", "Bearer "+doctorToken)
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "png bytes", rw.Body.String())

	// Only the owning patient can delete.
	w, _ = doJSON(t, srv, http.MethodDelete, "/api/records/1", nil, doctorToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Deleting the record empties the grant, which is removed with it.
	w, _ = doJSON(t, srv, http.MethodDelete, "/api/records/1", nil, patientToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, srv, http.MethodGet, "/api/access/records?doctorAddress=0xD", nil, doctorToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Empty(t, view.Grants)
	assert.Empty(t, view.Records)

	w, _ = doJSON(t, srv, http.MethodGet, "/api/records/view/1", nil, patientToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevokeCutsAccess(t *testing.T) {
	srv := buildServer(t)

	doJSON(t, srv, http.MethodPost, "/api/users", map[string]string{"address": "0xP", "role": "patient"}, "")
	doJSON(t, srv, http.MethodPost, "/api/users", map[string]string{"address": "0xD", "role": "doctor"}, "")
	patientToken := login(t, srv, "0xP", "patient")
	doctorToken := login(t, srv, "0xD", "doctor")

	w, _ := uploadRecord(t, srv, patientToken, "0xP", "Scan", []byte("bytes"))
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := doJSON(t, srv, http.MethodPost, "/api/access", map[string]interface{}{
		"patientAddress": "0xP",
		"doctorAddress":  "0xD",
		"recordIds":      []int64{1},
		"accessDuration": "permanent",
	}, patientToken)
	require.Equal(t, http.StatusCreated, w.Code)
	var grant struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &grant))

	w, _ = doJSON(t, srv, http.MethodGet, "/api/records/view/1", nil, doctorToken)
	assert.Equal(t, http.StatusOK, w.Code)

	// The doctor cannot revoke a grant they did not create.
	w, _ = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/access/%d", grant.ID), nil, doctorToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/access/%d", grant.ID), nil, patientToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, srv, http.MethodGet, "/api/records/view/1", nil, doctorToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/access/%d", grant.ID), nil, patientToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadValidation(t *testing.T) {
	srv := buildServer(t)
	doJSON(t, srv, http.MethodPost, "/api/users", map[string]string{"address": "0xP", "role": "patient"}, "")
	patientToken := login(t, srv, "0xP", "patient")

	// Disallowed extension.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "exe"))
	require.NoError(t, mw.WriteField("recordType", "other"))
	require.NoError(t, mw.WriteField("recordDate", "2024-01-01"))
	require.NoError(t, mw.WriteField("patientAddress", "0xP"))
	part, err := mw.CreateFormFile("file", "malware.exe")
	require.NoError(t, err)
	_, err = part.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/records", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+patientToken)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A well-formed upload still goes through.
	w2, _ := uploadRecord(t, srv, patientToken, "0xP", "Lab", []byte("x"))
	assert.Equal(t, http.StatusCreated, w2.Code)
}
