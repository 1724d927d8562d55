// Package imageio converts image files to and from stego buffers.
//
// Decoded buffers always have three channels in B, G, R order, which keeps
// the LSB stream compatible with images produced by OpenCV-based tools.
// Output is restricted to lossless formats (PNG, BMP, TIFF): any lossy
// re-encoding destroys the embedded bits.
package imageio
