package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ActiveExamKey holds the id of the exam new sessions start against.
func (r *CacheKeyStruct) ActiveExamKey() string {
	return "exam:active"
}

// ExamPayloadKey returns the cache key for an exam's candidate-facing definition
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamAnswerKey returns the cache key for an exam's solution key
func (r *CacheKeyStruct) ExamAnswerKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// ExamMetaKey returns the cache key for an exam's examiner contact and creation time
func (r *CacheKeyStruct) ExamMetaKey(examID string) string {
	return fmt.Sprintf("exam:%s:meta", examID)
}

// MonitorChannel is the Redis PubSub channel carrying session lifecycle events
func (r *CacheKeyStruct) MonitorChannel() string {
	return "exam:monitor"
}

// ResultChannel is the Redis PubSub channel carrying result reports
func (r *CacheKeyStruct) ResultChannel() string {
	return "exam:results"
}

var CacheKey = NewCacheKeyStruct()
