// Command tileperf rasters a layer's tiles through the tile task runner
// and reports how long each scheduling round takes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/tiles"
	"github.com/gogpu/tiles/origin"
	"github.com/gogpu/tiles/pool"
	"github.com/gogpu/tiles/resource"
	"github.com/gogpu/tiles/runner"
	"github.com/gogpu/tiles/tiletask"
	"github.com/gogpu/tiles/tiling"
)

// clientFunc adapts a function to runner.Client.
type clientFunc func(tiletask.TaskSet)

func (f clientFunc) DidFinishRunningTileTasks(s tiletask.TaskSet) { f(s) }

func main() {
	var (
		width    = flag.Int("width", 2048, "layer width")
		height   = flag.Int("height", 2048, "layer height")
		scale    = flag.Float64("scale", 1, "contents scale of the high resolution tiling")
		tileSize = flag.Int("tile", 256, "tile size in content pixels")
		workers  = flag.Int("workers", 0, "worker goroutines (0 = GOMAXPROCS)")
		strategy = flag.String("strategy", "bitmap", "raster strategy: bitmap, zero-copy, zero-copy-gpu, one-copy, gpu")
		budget   = flag.Int64("staging", runner.DefaultStagingBudget, "one-copy staging budget in bytes")
		rounds   = flag.Int("rounds", 10, "scheduling rounds")
		verbose  = flag.Bool("v", false, "debug logging to stderr")
	)
	flag.Parse()

	if *verbose {
		tiles.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	provider, release, err := newProvider(*strategy)
	if err != nil {
		log.Fatalf("Failed to create provider: %v", err)
	}
	defer release()

	rbp, err := newStrategy(*strategy, provider, *budget)
	if err != nil {
		log.Fatalf("Failed to create strategy: %v", err)
	}

	set := tiling.NewPictureLayerTilingSet(tiling.WithTileSize(tiles.Sz(*tileSize, *tileSize)))
	high, err := set.AddTiling(*scale)
	if err != nil {
		log.Fatalf("Failed to add tiling: %v", err)
	}
	if err := set.MarkHighRes(high); err != nil {
		log.Fatalf("Failed to mark high res: %v", err)
	}

	loop := origin.NewLoop()
	defer loop.Stop()

	rp := pool.New(provider, loop)
	r := runner.New(loop, rbp, runner.WithWorkers(*workers))

	done := make(chan struct{}, 1)
	loop.Sync(func() {
		r.SetClient(clientFunc(func(s tiletask.TaskSet) {
			if s == tiletask.All {
				done <- struct{}{}
			}
		}))
	})

	layer := image.Rect(0, 0, *width, *height)
	var total time.Duration
	var tasks int
	for round := range *rounds {
		start := time.Now()
		loop.Sync(func() {
			q := buildQueue(set, rp, layer, round)
			tasks = q.Len()
			r.ScheduleTasks(&q)
		})
		<-done
		elapsed := time.Since(start)
		total += elapsed
		loop.Sync(rp.CheckBusyResources)
		fmt.Printf("round %d: %d tasks in %v\n", round, tasks, elapsed)
	}

	var memory, count int
	loop.Sync(func() {
		memory = rp.GetTotalMemoryUsageForTesting()
		count = rp.GetTotalResourceCountForTesting()
		r.Shutdown()
		rp.Shutdown()
	})

	if *rounds > 0 {
		fmt.Printf("strategy=%s workers=%d avg=%v pool=%d resources/%d bytes\n",
			r.Strategy().Name(), r.Workers(), total/time.Duration(*rounds), count, memory)
	}
}

// buildQueue creates one raster task per tile covering layer. Each task
// returns its resource to the pool when it completes.
func buildQueue(set *tiling.PictureLayerTilingSet, rp *pool.ResourcePool, layer image.Rectangle, round int) tiletask.TileTaskQueue {
	var q tiletask.TileTaskQueue
	src := tiletask.SolidColorSource{Color: color.RGBA{R: uint8(round * 40), G: 128, B: 255, A: 255}}
	sets := tiletask.NewTaskSetCollection(tiletask.RequiredForDraw, tiletask.All)

	for c := range set.Coverage(layer, 1) {
		res, err := rp.AcquireResource(c.Tiling.TileSize(), gputypes.TextureFormatRGBA8Unorm)
		if err != nil {
			log.Printf("Skipping tile (%d,%d): %v", c.I, c.J, err)
			continue
		}
		q.Append(tiletask.NewRasterTask(tiletask.RasterTaskParams{
			Resource: res,
			Source:   src,
			Rect:     c.Tiling.TileContentRect(c.I, c.J),
			Scale:    c.Tiling.ContentsScale(),
			Reply:    func(bool) { rp.ReleaseResource(res, uint64(round+1)) },
		}), sets)
	}
	return q
}

// newProvider returns the provider for strategy and a func releasing it.
// GPU strategies run on the noop HAL device.
func newProvider(strategy string) (*resource.Provider, func(), error) {
	if strategy != "gpu" && strategy != "zero-copy-gpu" {
		p := resource.NewProvider(resource.NewBitmapBackend())
		return p, p.Close, nil
	}

	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, errors.New("tileperf: no noop adapters")
	}
	dev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, err
	}
	backend, err := resource.NewGPUBackend(dev.Device, dev.Queue)
	if err != nil {
		dev.Device.Destroy()
		instance.Destroy()
		return nil, nil, err
	}
	p := resource.NewProvider(backend)
	return p, func() {
		p.Close()
		dev.Device.Destroy()
		instance.Destroy()
	}, nil
}

func newStrategy(name string, p *resource.Provider, budget int64) (runner.RasterBufferProvider, error) {
	switch name {
	case "bitmap":
		s, err := runner.NewBitmap(p)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "zero-copy", "zero-copy-gpu":
		return runner.NewZeroCopy(p), nil
	case "one-copy":
		return runner.NewOneCopy(p, runner.WithStagingBudget(budget)), nil
	case "gpu":
		s, err := runner.NewGPU(p)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
