// Package dataprocessing cleans raw per-symbol series and reshapes the
// processed dataset for the animation: validation and forward-filling of
// short gaps, calendar-period resampling with fixed global axis bounds, and
// per-sector roll-ups at a snapshot date.
package dataprocessing
