// Package detection synthesizes mock car-part detection results.
//
// Nothing in this package inspects pixels. A Synthesizer produces a
// randomized DetectionResult for a given image size after an artificial
// processing delay, standing in for the latency and variability of a real
// inference call during UI development and demos. Confidence and accuracy
// figures are illustrative only.
//
// # Generation
//
// Each call to Synthesize:
//
//  1. Waits a delay drawn uniformly from [500ms, 1500ms]. The wait blocks only
//     the calling goroutine and ends early if the context is cancelled.
//  2. Draws a candidate count uniformly from 3 to 8 inclusive.
//  3. For each candidate picks an archetype from the Catalog, draws a
//     confidence in [0.7, 1.0) and discards the candidate if it falls below
//     the threshold. Surviving candidates get a box sized from the
//     archetype's size range and placed fully inside the image.
//  4. Aggregates coverage (not de-duplicated, so it may exceed 100) and a
//     random accuracy in [85, 95].
//
// # Coordinate System
//
// Bounding boxes use floating point pixel coordinates with the origin at the
// top-left corner, X increasing rightward and Y increasing downward. Every box
// satisfies x >= 0, y >= 0, x+width <= imageWidth, y+height <= imageHeight.
//
// # Determinism
//
// The random source, delay function and clock are injectable through Options,
// so tests can reproduce a result exactly from a seed.
//
// # Thread Safety
//
// A Synthesizer is safe for concurrent use. Calls are independent of each
// other; the only shared state is the random source, which is guarded.
package detection
