package ginutil

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// QueryInt extracts an integer from query parameters with default value
func QueryInt(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// QueryIntAny returns the first parseable integer among keys, or defaultValue.
// Used for parameters that have historical aliases (limit / pageSize).
func QueryIntAny(c *gin.Context, defaultValue int, keys ...string) int {
	for _, k := range keys {
		if c.Query(k) == "" {
			continue
		}
		if v, err := strconv.Atoi(c.Query(k)); err == nil {
			return v
		}
	}
	return defaultValue
}

// ParamInt64 extracts an int64 from path parameters
func ParamInt64(c *gin.Context, key string) (int64, error) {
	return strconv.ParseInt(c.Param(key), 10, 64)
}
