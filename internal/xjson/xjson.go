// Package xjson is the single import site for JSON codec selection; every
// other package marshals through it so swapping goccy/go-json back to the
// standard library is a one-file change.
package xjson

import (
	gjson "github.com/goccy/go-json"
)

func Marshal(v interface{}) ([]byte, error) {
	return gjson.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return gjson.Unmarshal(data, v)
}
