package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type memberRequest struct {
	Role string `json:"role" binding:"required,role"`
}

type brandingRequest struct {
	Name         string `json:"name" binding:"omitempty,min=1,max=100"`
	PrimaryColor string `json:"primary_color" binding:"omitempty,brand_color"`
}

type planRequest struct {
	Plan string `json:"plan" binding:"omitempty,oneof=free team enterprise"`
}

type listQuery struct {
	Status string `form:"status" binding:"omitempty,invitation_status"`
}

func bindJSON(t *testing.T, body string, dst any) error {
	t.Helper()
	if err := Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c.ShouldBindJSON(dst)
}

func TestRegister_Idempotent(t *testing.T) {
	if err := Register(); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register(); err != nil {
		t.Fatalf("second Register: %v", err)
	}
}

func TestRoleRule(t *testing.T) {
	tests := []struct {
		body    string
		wantErr bool
	}{
		{`{"role":"owner"}`, false},
		{`{"role":"admin"}`, false},
		{`{"role":"member"}`, false},
		{`{"role":"superuser"}`, true},
		{`{"role":"Owner"}`, true},
		{`{}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var req memberRequest
			err := bindJSON(t, tt.body, &req)
			if (err != nil) != tt.wantErr {
				t.Errorf("bind error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBrandColorRule(t *testing.T) {
	var ok brandingRequest
	if err := bindJSON(t, `{"primary_color":"#00AAff"}`, &ok); err != nil {
		t.Errorf("valid color rejected: %v", err)
	}

	var bad brandingRequest
	err := bindJSON(t, `{"primary_color":"#abc"}`, &bad)
	if err == nil {
		t.Fatal("short color accepted")
	}
	if got := Message(err); got != "primary_color must be a hex color like #1a2b3c" {
		t.Errorf("Message = %q", got)
	}
}

func TestInvitationStatusRule_Query(t *testing.T) {
	if err := Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, tt := range []struct {
		query   string
		wantErr bool
	}{
		{"", false},
		{"status=pending", false},
		{"status=cancelled", false},
		{"status=expired", true},
	} {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			var q listQuery
			err := c.ShouldBindQuery(&q)
			if (err != nil) != tt.wantErr {
				t.Errorf("bind error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	var req memberRequest
	err := bindJSON(t, `{"role":"root"}`, &req)
	if got := Message(err); got != "role must be one of owner, admin, member" {
		t.Errorf("Message = %q", got)
	}

	err = bindJSON(t, `{}`, &req)
	if got := Message(err); got != "role is required" {
		t.Errorf("Message = %q", got)
	}

	var plan planRequest
	err = bindJSON(t, `{"plan":"gold"}`, &plan)
	if got := Message(err); got != "plan must be one of free, team, enterprise" {
		t.Errorf("Message = %q", got)
	}

	err = bindJSON(t, `{not json`, &req)
	if got := Message(err); got != "invalid request body" {
		t.Errorf("Message = %q", got)
	}
}
