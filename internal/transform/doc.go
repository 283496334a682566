// Package transform turns a fetched bid document into structured fields.
//
// Heuristic extracts text (pdftotext for PDFs, the raw bytes for text files),
// normalises it, applies regular-expression rules for the well-known bid
// fields and writes a JSON document next to the other outputs. A confidence
// score reports how many of the key fields were found.
package transform
