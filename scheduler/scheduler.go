// Package scheduler runs the housekeeping jobs that sit next to the
// monitoring loop:
//   - purging triggered alerts past their retention window
//   - refreshing the realtime hub gauges
//
// The jobs are defined in jobs.go
package scheduler
