package couchdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, user, password string) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Options{
		Server:   server.URL + "/",
		User:     user,
		Password: password,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	return client
}

func TestNewClient_EmptyServer(t *testing.T) {
	client, err := NewClient(Options{})

	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrEmptyServer)
}

func TestPath_EscapesSegments(t *testing.T) {
	assert.Equal(t, "/_all_dbs", Path("_all_dbs"))
	assert.Equal(t, "/orders/_design/views", Path("orders", "_design", "views"))
	assert.Equal(t, "/my%2Fdb/_design/views/_view/by%20date", Path("my/db", "_design", "views", "_view", "by date"))
}

func TestClient_URL(t *testing.T) {
	client, err := NewClient(Options{Server: "http://couch:5984/"})
	require.NoError(t, err)

	assert.Equal(t, "http://couch:5984/_all_dbs", client.URL("/_all_dbs", ""))
	assert.Equal(t, "http://couch:5984/a/_design/views/_view/v1?limit=1", client.URL("/a/_design/views/_view/v1", "limit=1"))
}

func TestClient_GetJSON_SendsBasicAuth(t *testing.T) {
	var gotUser, gotPassword string
	var gotAuth bool

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPassword, gotAuth = r.BasicAuth()
		assert.Equal(t, "/_all_dbs", r.URL.Path)
		w.Write([]byte(`["a","b"]`))
	}, "admin", "secret")

	var dbs []string
	err := client.GetJSON(context.Background(), Path("_all_dbs"), &dbs)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, dbs)
	assert.True(t, gotAuth)
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "secret", gotPassword)
}

func TestClient_GetJSON_NoAuthWithoutCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := r.BasicAuth()
		assert.False(t, ok)
		w.Write([]byte(`[]`))
	}, "", "")

	var dbs []string
	require.NoError(t, client.GetJSON(context.Background(), Path("_all_dbs"), &dbs))
}

func TestClient_GetJSON_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}, "", "")

	var dbs []string
	err := client.GetJSON(context.Background(), Path("_all_dbs"), &dbs)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
	assert.Equal(t, 0, StatusCode(err))
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		notFound     bool
		unauthorized bool
		errType      string
	}{
		{
			name:     "not found",
			status:   http.StatusNotFound,
			body:     `{"error":"not_found","reason":"missing"}`,
			notFound: true,
			errType:  "not_found",
		},
		{
			name:         "unauthorized",
			status:       http.StatusUnauthorized,
			body:         `{"error":"unauthorized","reason":"Name or password is incorrect."}`,
			unauthorized: true,
			errType:      "unauthorized",
		},
		{
			name:   "server error with html body",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, "", "")

			err := client.Touch(context.Background(), Path("db", "_design", "views"), "")

			require.Error(t, err)
			var couchErr *Error
			require.True(t, errors.As(err, &couchErr))
			assert.Equal(t, tt.status, couchErr.StatusCode)
			assert.Equal(t, tt.errType, couchErr.ErrorType)
			assert.Equal(t, tt.notFound, IsNotFound(err))
			assert.Equal(t, tt.unauthorized, couchErr.IsUnauthorized())
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestClient_Touch_SendsQuery(t *testing.T) {
	var gotQuery string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"total_rows":10,"rows":[]}`))
	}, "", "")

	err := client.Touch(context.Background(), Path("db", "_design", "views", "_view", "v"), "limit=1&reduce=true&group=true")

	require.NoError(t, err)
	assert.Equal(t, "limit=1&reduce=true&group=true", gotQuery)
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := NewClient(Options{Server: server.URL, Timeout: time.Second})
	require.NoError(t, err)

	err = client.Touch(context.Background(), Path("_all_dbs"), "")

	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Equal(t, 0, StatusCode(err))
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "couchdb: status 500", (&Error{StatusCode: 500}).Error())
	assert.Equal(t, "couchdb: status 404: not_found - deleted",
		(&Error{StatusCode: 404, ErrorType: "not_found", Reason: "deleted"}).Error())
}
