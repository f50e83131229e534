package services

import "encoding/json"

// mustJSON 序列化切片等确定可编码的值
func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
