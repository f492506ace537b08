package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appErrors "github.com/noah-isme/academia-api/pkg/errors"
	"github.com/noah-isme/academia-api/pkg/response"
)

// pathID reads the :id parameter. Malformed identifiers cannot name an
// existing resource, so they answer 404 with the given message.
func pathID(c *gin.Context, notFoundMessage string) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, notFoundMessage))
		return "", false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// paging reads page and limit; unparsable values fall back to defaults.
func paging(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.Query("limit"))
	return page, size
}

func sorting(c *gin.Context) (string, string) {
	return strings.TrimSpace(c.Query("sort")), strings.TrimSpace(c.Query("order"))
}

// queryUUID returns an optional identifier filter, rejecting malformed values.
func queryUUID(c *gin.Context, key string) (string, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return "", nil
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", invalidQuery(key, "uuid", key+" must be a valid identifier")
	}
	return raw, nil
}

// queryFloat returns an optional numeric filter, rejecting malformed values.
func queryFloat(c *gin.Context, key string) (*float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, invalidQuery(key, "number", key+" must be a number")
	}
	return &v, nil
}

// queryBool returns an optional boolean filter, rejecting malformed values.
func queryBool(c *gin.Context, key string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "":
		return nil, nil
	case "true", "1":
		v := true
		return &v, nil
	case "false", "0":
		v := false
		return &v, nil
	}
	return nil, invalidQuery(key, "boolean", key+" must be true or false")
}

func invalidQuery(field, rule, message string) error {
	return appErrors.WithDetails(appErrors.ErrValidation, "invalid query parameters", []appErrors.FieldError{
		{Field: field, Rule: rule, Message: message},
	})
}
