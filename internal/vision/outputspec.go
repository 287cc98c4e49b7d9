package vision

import "github.com/your-org/inspectline/internal/types"

// anchorStrides are the standard YOLO-family detection head strides;
// each head contributes one anchor column per grid cell.
var anchorStrides = []int{8, 16, 32}

// DefaultAnchorCount derives the flattened anchor-column count a
// standard single-output detection head produces for a given model
// input extent, used to pre-allocate the main output tensor the way
// ONNX Runtime's advanced-session API requires fixed shapes up front.
func DefaultAnchorCount(modelW, modelH int) int {
	total := 0
	for _, stride := range anchorStrides {
		total += (modelW / stride) * (modelH / stride)
	}
	return total
}

// BuildOutputSpecs names and shapes the output tensor(s) NewSession
// must bind for a given task: for Detect/Pose/OBB/Segment, one
// channel-major main output ("output0") of [rows, anchors], plus a
// mask-prototype output ("output1") for Segment; for Classify, a
// single [labelCount] vector named "output0".
func BuildOutputSpecs(task types.TaskType, modelW, modelH, labelCount, keypointCount int) []OutputSpec {
	anchors := DefaultAnchorCount(modelW, modelH)

	switch task {
	case types.TaskClassify:
		return []OutputSpec{{Name: "output0", Shape: []int64{int64(labelCount)}, Role: OutputMain}}
	case types.TaskDetect:
		rows := 4 + labelCount
		return []OutputSpec{{Name: "output0", Shape: []int64{int64(rows), int64(anchors)}, Role: OutputMain}}
	case types.TaskOBB:
		rows := 5 + labelCount
		return []OutputSpec{{Name: "output0", Shape: []int64{int64(rows), int64(anchors)}, Role: OutputMain}}
	case types.TaskPose:
		rows := 4 + labelCount + 3*keypointCount
		return []OutputSpec{{Name: "output0", Shape: []int64{int64(rows), int64(anchors)}, Role: OutputMain}}
	case types.TaskSegment:
		const maskDim = 32
		const protoExtent = 160
		rows := 4 + labelCount + maskDim
		return []OutputSpec{
			{Name: "output0", Shape: []int64{int64(rows), int64(anchors)}, Role: OutputMain},
			{Name: "output1", Shape: []int64{maskDim, protoExtent, protoExtent}, Role: OutputProto},
		}
	default:
		rows := 4 + labelCount
		return []OutputSpec{{Name: "output0", Shape: []int64{int64(rows), int64(anchors)}, Role: OutputMain}}
	}
}
