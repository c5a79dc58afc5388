// Package lightgbm provides a pure Go gradient-boosted decision tree classifier for
// binary targets.
//
// Trees are grown depth-wise with an exact greedy split search on the
// second-order approximation of the logistic loss. Split gains and leaf weights are
// regularized with both L1 (RegAlpha, soft-thresholding the gradient sum) and L2
// (RegLambda) penalties, and positive samples can be up-weighted with ScalePosWeight
// for imbalanced targets.
//
// # Basic Usage
//
//	clf := lightgbm.NewLGBMClassifier().
//	    WithRegAlpha(0.1).
//	    WithRegLambda(5).
//	    WithScalePosWeight(neg / pos)
//	if err := clf.Fit(XTrain, yTrain); err != nil {
//	    return err
//	}
//	proba, err := clf.PredictProba(XTest) // (n, 2): P(y=0), P(y=1)
//
// # Feature Importance
//
//	gain := clf.GetFeatureImportance(lightgbm.ImportanceGain)
//
// A fitted classifier is a plain value with exported fields and can be persisted with
// encoding/gob, on its own or inside a pipeline.
package lightgbm
