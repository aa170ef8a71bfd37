package tools

import "fmt"

func flagForAdmin(args map[string]interface{}) *Result {
	reason, _ := args["reason"].(string)
	urgency, _ := args["urgency"].(string)
	urgency = NormalizeUrgency(urgency)
	return FlagResult(
		fmt.Sprintf("แจ้งแอดมินเรียบร้อยแล้ว (ความเร่งด่วน: %s) เหตุผล: %s", urgency, reason),
		reason, urgency,
	)
}
