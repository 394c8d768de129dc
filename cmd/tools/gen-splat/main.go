// Command gen-splat writes a synthetic Gaussian splat scene as a binary PLY
// file, optionally followed by camera metadata elements.
package main

import (
	"flag"
	"log"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/splatprune/internal/fsutil"
	"github.com/banshee-data/splatprune/internal/ply"
	"github.com/banshee-data/splatprune/internal/synth"
)

func main() {
	output := flag.String("o", "scene.ply", "output path")
	count := flag.Int("n", 100000, "number of Gaussians")
	seed := flag.Uint64("seed", 1, "random seed")
	camera := flag.Bool("camera", false, "append camera metadata elements")
	linear := flag.Bool("linear", false, "space opacities evenly in point order")
	width := flag.Uint("width", 0, "image width recorded with -camera (default 1920)")
	height := flag.Uint("height", 0, "image height recorded with -camera (default 1080)")
	flag.Parse()

	if *count < 0 {
		log.Fatalf("-n must be non-negative, got %d", *count)
	}

	scene := synth.Generate(*count, *seed, synth.Options{
		LinearOpacity: *linear,
		Camera:        *camera,
		Width:         uint32(*width),
		Height:        uint32(*height),
	})
	n, err := ply.WriteFile(fsutil.OSFileSystem{}, *output, scene.Points, scene.Auxiliary, scene.AuxData)
	if err != nil {
		log.Fatalf("write scene: %v", err)
	}
	log.Printf("✓ Created: %s (%s points, %s)", *output, humanize.Comma(int64(*count)), humanize.Bytes(uint64(n)))
}
