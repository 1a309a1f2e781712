// Package merge holds jin's format independent value model and the merge
// operator used to fold layers together.
//
// Every structured file (JSON, YAML, TOML, INI) is parsed into a Value, the
// values of all layers holding that file are folded lowest precedence first,
// and the result is serialized back into the file's own format. Structured
// merges never conflict: whenever the two sides disagree in shape the higher
// layer wins.
package merge
