package utils

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"go.uber.org/multierr"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	quarterProcs := float64(ParallelFactor) * .25
	if quarterProcs > 8 {
		ParallelFactor = int(quarterProcs)
	}
}

type (
	// BeforeParallelGroupWorkFunc executes before any work starts with the calculated group count.
	BeforeParallelGroupWorkFunc func(numGroups int)
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(ctx context.Context, memberNum, workNum int) error
	// GroupWorkDoneFunc runs when a single group's work is done; helpful for merge stages.
	GroupWorkDoneFunc func()
	// GroupWorkFunc runs to determine what work members should do, if any.
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// GroupWorkParallel splits totalSize work items into at most maxGroups contiguous groups and runs
// each group on its own goroutine. Members of a group run sequentially so per-group state built
// in groupWork is never shared. The first member error (or panic) cancels the context handed to
// the remaining members and all errors are returned combined.
func GroupWorkParallel(
	ctx context.Context,
	totalSize, maxGroups int,
	before BeforeParallelGroupWorkFunc,
	groupWork GroupWorkFunc,
) error {
	if totalSize <= 0 {
		return nil
	}
	numGroups := maxGroups
	if numGroups <= 0 {
		numGroups = ParallelFactor
	}
	if numGroups > totalSize {
		numGroups = totalSize
	}
	groupSize := int(math.Floor(float64(totalSize) / float64(numGroups)))
	extra := totalSize % numGroups

	if before != nil {
		before(numGroups)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wait     sync.WaitGroup
		errMu    sync.Mutex
		bigError error
	)
	storeError := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		bigError = multierr.Combine(bigError, err)
		cancel()
	}

	runGroup := func(groupNum int) {
		defer func() {
			if thePanic := recover(); thePanic != nil {
				storeError(fmt.Errorf("got panic running group work in parallel: %v", thePanic))
			}
			wait.Done()
		}()

		thisGroupSize := groupSize
		thisExtra := 0
		if groupNum == (numGroups - 1) {
			thisExtra = extra
			thisGroupSize += thisExtra
		}
		from := groupSize * groupNum
		to := (groupSize * (groupNum + 1)) + thisExtra
		memberWork, groupWorkDone := groupWork(groupNum, thisGroupSize, from, to)
		if memberWork != nil {
			memberNum := 0
			for workNum := from; workNum < to; workNum++ {
				if err := ctx.Err(); err != nil {
					return
				}
				if err := memberWork(ctx, memberNum, workNum); err != nil {
					storeError(err)
					return
				}
				memberNum++
			}
		}
		if groupWorkDone != nil {
			groupWorkDone()
		}
	}

	wait.Add(numGroups)
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		go runGroup(groupNum)
	}
	wait.Wait()

	errMu.Lock()
	defer errMu.Unlock()
	if bigError != nil {
		return bigError
	}
	// parent cancellation
	return ctx.Err()
}
