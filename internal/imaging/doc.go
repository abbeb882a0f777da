// Package imaging loads, encodes, saves and slices the raster images that
// detection overlays are drawn onto.
//
// Images are decoded with EXIF orientation applied, so coordinates reported
// by the detection package line up with what a viewer shows. All pixel
// coordinates are 0-based from the top-left corner.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The remaining functions are
// stateless and may be called concurrently on different images.
//
// # Output
//
// Rendered images leave the package as base64 PNG (EncodeBase64PNG,
// Annotate) or as PNG files on disk (SavePNG). Files written into a
// directory are named detection_<timestamp>.png.
//
// # Performance Considerations
//
// Cached images stay decoded in memory. Long-running processes should use
// Evict() or Clear() once a frame is no longer needed.
package imaging
