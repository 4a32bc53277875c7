package response

import (
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOKWithData(t *testing.T) {
	data := map[string]string{"key": "value"}
	resp := StatusOKWithData(data)

	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Error)
	assert.Equal(t, data, resp.Data)
}

func TestError(t *testing.T) {
	resp := Error("something went wrong")

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "something went wrong", resp.Error)
}

func TestValidationError(t *testing.T) {
	type request struct {
		ExternalID int64  `validate:"gt=0"`
		Plan       string `validate:"required,oneof=week two_weeks month"`
		Username   string `validate:"max=4"`
	}

	tests := []struct {
		name string
		req  request
		want []string
	}{
		{
			name: "обязательное поле",
			req:  request{ExternalID: 1},
			want: []string{"field Plan is a required field"},
		},
		{
			name: "неизвестный тариф и отрицательный id",
			req:  request{ExternalID: -1, Plan: "year"},
			want: []string{
				"field ExternalID must be greater than 0",
				"field Plan must be one of [week two_weeks month]",
			},
		},
		{
			name: "слишком длинное имя",
			req:  request{ExternalID: 1, Plan: "week", Username: "morpheus"},
			want: []string{"field Username is too long"},
		},
	}

	v := validator.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			require.Error(t, err)

			resp := ValidationError(err.(validator.ValidationErrors))
			assert.Equal(t, StatusError, resp.Status)
			for _, msg := range tt.want {
				assert.Contains(t, resp.Error, msg)
			}
		})
	}
}
