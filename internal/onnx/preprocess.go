package onnx

import (
	"image"
	"runtime"
	"sync"
)

// writeCHW fills dst with the image in planar CHW float32 layout, channels
// scaled to [0,1]. Rows are split across workers; dst must hold 3*w*h values.
func writeCHW(img *image.NRGBA, dst []float32) {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	channelSize := width * height

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if w == numWorkers-1 {
			endY = height
		}

		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				row := img.Pix[y*img.Stride:]
				offset := y * width
				for x := 0; x < width; x++ {
					i := offset + x
					px := row[x*4:]
					dst[i] = float32(px[0]) / 255.0
					dst[channelSize+i] = float32(px[1]) / 255.0
					dst[channelSize*2+i] = float32(px[2]) / 255.0
				}
			}
		}(startY, endY)
	}

	wg.Wait()
}
