package handler

import (
	"net/http"
	"strconv"

	"github.com/zynqcloud/filegate/internal/fileops"
)

// queryBool parses a string boolean: "true" is true, anything else
// (including absence) is false.
func queryBool(r *http.Request, key string) bool {
	return r.URL.Query().Get(key) == "true"
}

// queryBoolDefault is queryBool but returns def when the key is absent.
func queryBoolDefault(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	return v == "true"
}

func infoOptionsFromQuery(r *http.Request) fileops.InfoOptions {
	return fileops.InfoOptions{
		ShowHidden:   queryBool(r, "showHidden"),
		ComputeSizes: queryBool(r, "computeSizes"),
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
