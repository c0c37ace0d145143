package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		fromToken string
		header    string
		want      string
		wantErr   error
	}{
		{name: "apenas cabeçalho", header: "clinic-a", want: "clinic-a"},
		{name: "apenas token", fromToken: "clinic-b", want: "clinic-b"},
		{name: "token e cabeçalho iguais", fromToken: "clinic-a", header: "clinic-a", want: "clinic-a"},
		{name: "token e cabeçalho diferentes", fromToken: "clinic-a", header: "clinic-b", wantErr: ErrTenantMismatch},
		{name: "nenhum", wantErr: ErrTenantNotSpecified},
		{name: "caracteres inválidos", header: "clinic a;drop", wantErr: ErrTenantInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.fromToken, tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTenantMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(TenantMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		assert.Equal(t, GetTenantID(c), GetTenantIDFromContext(c.Request.Context()))
		c.String(http.StatusOK, GetTenantID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderName, "clinic-a")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "clinic-a", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
