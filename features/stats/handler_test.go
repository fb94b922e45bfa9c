package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"campusrag/internal/vector"
)

type MockVectorStore struct{ mock.Mock }

func (m *MockVectorStore) Stats(ctx context.Context) (vector.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(vector.Stats), args.Error(1)
}

func TestHandler_GetStats_Table(t *testing.T) {
	tests := []struct {
		name       string
		setupMock  func(*MockVectorStore)
		wantStatus int
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			setupMock: func(m *MockVectorStore) {
				m.On("Stats", mock.Anything).
					Return(vector.Stats{Records: 1200, Backend: "weaviate", Dim: 1536}, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 1200, data["records"])
				assert.Equal(t, "weaviate", data["backend"])
				assert.EqualValues(t, 1536, data["dim"])
				assert.Equal(t, "text-embedding-3-small", data["embedding_model"])
				assert.Equal(t, "gpt-4o-mini", data["llm_model"])
			},
		},
		{
			name: "Store error",
			setupMock: func(m *MockVectorStore) {
				m.On("Stats", mock.Anything).
					Return(vector.Stats{}, errors.New("store down"))
			},
			wantStatus: http.StatusInternalServerError,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockVectorStore)
			tt.setupMock(store)

			handler := NewHandler(store, "text-embedding-3-small", "gpt-4o-mini")
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			handler.GetStats(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]interface{}
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			tt.checkBody(t, body)
			store.AssertExpectations(t)
		})
	}
}
