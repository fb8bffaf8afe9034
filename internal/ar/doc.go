// Package ar defines the collaborator contracts the anchor lifecycle core
// consumes from the host AR runtime, plus the small amount of geometry the
// core needs to orient placed content.
//
// Everything here is a boundary type. Plane detection, pose estimation,
// rendering and input recognition live on the other side of these
// interfaces.
package ar
