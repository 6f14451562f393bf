package mysql

import "intelliscale/pkg/store/mysql/model"

// Re-export types from model package so callers only import the store package

type (
	// Database models
	ScalingPolicy  = model.ScalingPolicy
	ScalingEvent   = model.ScalingEvent
	LoadTest       = model.LoadTest
	LoadTestMetric = model.LoadTestMetric
	Container      = model.Container

	// Custom JSON types
	JSONMap = model.JSONMap
)

// Re-export helper functions
var (
	StringMapToJSONMap = model.StringMapToJSONMap
	JSONMapToStringMap = model.JSONMapToStringMap
)
