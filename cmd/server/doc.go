// Server 是多房間派對遊戲的即時中繼服務器。
//
// 支援三種遊戲：你畫我猜（draw）、貪食蛇（snake）與乒乓（pong）。
// 伺服器不模擬任何遊戲；它負責房間與加入碼、玩家名稱、房主轉移，
// 以及你畫我猜的回合、計分與畫手輪替，其餘遊戲事件只做轉發。
//
// # WebSocket 通訊
//
// 客戶端連到 /ws，每則訊息都是一個 JSON 文字幀：
//
//	{"event": "joinRoom", "ack": 3, "data": {"code": "ABC234", "name": "Bob"}}
//
// 帶 ack 的請求會收到同編號的回覆：
//
//	{"event": "ack", "ack": 3, "data": {...}}
//	{"event": "ack", "ack": 3, "data": {"error": "Комната не найдена"}}
//
// 每個動作都有每連線的固定視窗限流，超出的動作直接丟棄、不回覆。
//
// # HTTP 端點
//
//   - GET /health：健康檢查
//   - GET /stats：房間、玩家與連線統計
//   - GET /api/v1/rooms/{code}：加入前查詢房間
//   - GET /metrics：Prometheus 指標
//
// # 配置選項
//
// 設定依序來自內建預設值、YAML 設定檔、.env 與環境變數，最後是命令列參數：
//
//	server -config party.yaml -port 3000 -log-level debug
//
// 環境變數：PORT、LOG_LEVEL、LOG_FORMAT、ALLOWED_ORIGINS（逗號分隔）。
//
// # 優雅關閉
//
// 收到 SIGINT 或 SIGTERM 後停止接受新請求，向所有房間推送 serverShutdown，
// 停止閒置房間回收與尚未觸發的輪替，最後關閉所有 WebSocket 連線。
package main
