// Package exporter writes the pipeline's tabular outputs: the processed
// dataset and sector summary as CSV (UTF-8 BOM for Excel), the animation
// dataset and run report as JSON. Row ordering is deterministic so a warm
// cache run reproduces byte-identical files.
package exporter
